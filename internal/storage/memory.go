package storage

import (
	"sync"

	"github.com/fedepagnotta/lottery-server/internal/betting"
)

// MemoryStore is an in-process Store, mutex-guarded exactly like the
// hub's client registry: one lock, no finer-grained sharding, because
// bet volume for this exercise never warrants it.
type MemoryStore struct {
	mu   sync.Mutex
	bets []betting.Bet
}

// NewMemoryStore returns an empty, ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) StoreBets(bets []betting.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets = append(s.bets, bets...)
	return nil
}

func (s *MemoryStore) LoadBets() ([]betting.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]betting.Bet, len(s.bets))
	copy(out, s.bets)
	return out, nil
}
