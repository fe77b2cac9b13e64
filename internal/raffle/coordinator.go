// Package raffle implements the process-wide rendezvous described in
// spec.md §4.3: a Coordinator tracks which agencies have signaled
// FINISHED, releases a one-shot barrier once every expected agency has
// signaled, and runs the raffle computation exactly once regardless of
// how many goroutines race to trigger it.
//
// The registry-with-single-mutex shape is grounded on hub.Hub (a
// process-wide map guarded by one lock that many session goroutines
// read and mutate concurrently); the difference is that Hub fans out
// to N clients while Coordinator fans in from N clients to one
// computation.
package raffle

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/fedepagnotta/lottery-server/internal/betting"
	"github.com/fedepagnotta/lottery-server/internal/draw"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/storage"
)

// Coordinator is a process-wide singleton shared by every session
// handler. It must be constructed once at startup and passed by
// reference (spec.md §9: "process-wide mutable state -> Coordinator
// object" rather than package-level globals), which is what makes it
// possible to construct one in isolation per test.
type Coordinator struct {
	mu       sync.Mutex
	cond     *sync.Cond
	expected int
	finished map[int32]struct{}

	barrierReleased bool
	raffleOnce      sync.Once
	raffleDone      bool
	winners         map[int32][]string

	store  storage.Store
	drawer draw.Drawer
	logger *slog.Logger
}

// New constructs a Coordinator for exactly `expected` agencies.
func New(expected int, store storage.Store, drawer draw.Drawer, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		expected: expected,
		finished: make(map[int32]struct{}, expected),
		winners:  make(map[int32][]string),
		store:    store,
		drawer:   drawer,
		logger:   logger,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SignalFinished records agencyID as finished and blocks until the
// barrier releases (i.e. until `expected` distinct agencies have
// signaled). The call that observes the expected count first does not
// block further: it is released together with everyone else, then
// every released goroutine races to run the raffle, but raffleOnce
// ensures exactly one of them actually does. SignalFinished is
// idempotent for a repeat signal from the same agency_id: it does not
// remove or double count already-finished agencies (finished is a set,
// monotonic per spec.md §3).
func (c *Coordinator) SignalFinished(agencyID int32) {
	c.mu.Lock()
	c.finished[agencyID] = struct{}{}
	count := len(c.finished)
	metrics.SetAgenciesFinished(count)
	if count >= c.expected {
		c.barrierReleased = true
		c.cond.Broadcast()
	} else {
		for !c.barrierReleased {
			c.cond.Wait()
		}
	}
	c.mu.Unlock()

	c.raffleOnce.Do(c.runRaffle)
}

// HasFinished reports whether agencyID has already signaled completion.
// Two-phase sessions gate REQUEST_WINNERS on this.
func (c *Coordinator) HasFinished(agencyID int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.finished[agencyID]
	return ok
}

// AwaitRaffleDone blocks until the raffle has run (successfully or not;
// see runRaffle). A session that only calls AwaitRaffleDone, without
// SignalFinished, never contributes to the barrier count — it is meant
// for REQUEST_WINNERS on a connection distinct from the one that sent
// FINISHED.
func (c *Coordinator) AwaitRaffleDone() {
	c.mu.Lock()
	for !c.raffleDone {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// WinnersFor returns the winning documents for agencyID. Valid only
// after AwaitRaffleDone (or after SignalFinished has returned, which
// implies the raffle has already run for this goroutine's caller).
// Agencies with no winners, or agencies never seen by the raffle, get
// an empty slice rather than nil so callers can encode it directly.
func (c *Coordinator) WinnersFor(agencyID int32) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := c.winners[agencyID]
	out := make([]string, len(docs))
	copy(out, docs)
	return out
}

// runRaffle loads every persisted bet, groups the winning documents by
// agency (preserving load order within each agency), and publishes the
// result. It runs at most once per process lifetime, guarded by
// raffleOnce in SignalFinished.
//
// If loading fails, raffleDone is still set — with an empty winners
// map — so that no waiter on AwaitRaffleDone deadlocks; the failure is
// logged at error level per spec.md §7.
func (c *Coordinator) runRaffle() {
	winners := make(map[int32][]string)
	bets, err := c.store.LoadBets()
	if err != nil {
		c.logger.Error("sorteo", "result", "fail", "error", err)
		metrics.IncError(metrics.ErrRaffle)
	} else {
		winningNumber := c.drawer.Draw()
		for _, b := range bets {
			if !betting.HasWon(b, winningNumber) {
				continue
			}
			agencyID, convErr := strconv.Atoi(b.AgencyID)
			if convErr != nil {
				c.logger.Warn("sorteo_bet_skipped", "agencia", b.AgencyID, "error", convErr)
				continue
			}
			winners[int32(agencyID)] = append(winners[int32(agencyID)], b.Document)
		}
		c.logger.Info("sorteo", "result", "success", "ganadores", totalWinners(winners))
		metrics.IncRaffleRun()
	}

	c.mu.Lock()
	c.winners = winners
	c.raffleDone = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

func totalWinners(winners map[int32][]string) int {
	n := 0
	for _, docs := range winners {
		n += len(docs)
	}
	return n
}
