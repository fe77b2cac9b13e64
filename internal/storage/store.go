// Package storage is the persistence collaborator spec.md treats as an
// opaque external service (store_bets / load_bets). It is made concrete
// here because a complete repository has to ship something behind that
// interface; the session handler and raffle coordinator only ever see
// the Store interface, never a concrete type.
package storage

import "github.com/fedepagnotta/lottery-server/internal/betting"

// Store is the persistence collaborator. Implementations must serialize
// their own mutation internally: spec.md's concurrency model requires a
// single mutex shared across all session handlers guarding storage, so
// every Store implementation here owns one.
type Store interface {
	// StoreBets appends bets, in order, to the persisted set.
	StoreBets(bets []betting.Bet) error
	// LoadBets returns every persisted bet in insertion order.
	LoadBets() ([]betting.Bet, error)
}
