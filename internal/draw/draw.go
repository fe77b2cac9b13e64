// Package draw produces the winning number consumed by betting.HasWon.
// It is kept separate from the raffle coordinator so the draw mechanism
// can be swapped without touching rendezvous or persistence logic.
// FixedDrawer is the only implementation here.
package draw

// Drawer produces the winning number for one raffle.
type Drawer interface {
	Draw() string
}

// FixedDrawer always returns the configured number. Used both by
// --winning-number in production (operators pin a known draw result)
// and by tests that need a deterministic outcome.
type FixedDrawer struct {
	Number string
}

func (d FixedDrawer) Draw() string { return d.Number }
