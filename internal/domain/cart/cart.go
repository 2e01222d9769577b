package cart

import (
	"errors"
	"time"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
	ErrSessionRequired = errors.New("cart: session id is required")
	ErrProductRequired = errors.New("cart: product id is required")
)

const (
	DefaultIdleTTL       = 20 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

// Snapshot is a detached copy of a session's cart: productID -> reserved quantity.
type Snapshot map[string]int

// Units returns the total number of reserved units in the snapshot.
func (s Snapshot) Units() int {
	total := 0
	for _, qty := range s {
		total += qty
	}
	return total
}

// Store tracks per-session reservations. Every mutation goes through the stock ledger first.
// Unknown sessions and products resolve to zero/empty; releases of unknown state are no-ops.
type Store interface {
	AddOne(sessionID, productID string) bool
	RemoveOne(sessionID, productID string) bool
	QuantityOf(sessionID, productID string) int
	Snapshot(sessionID string) Snapshot
	ReleaseAll(sessionID string) int
	// Settle removes sold units from the cart without releasing them and returns how many it removed.
	Settle(sessionID string, sold Snapshot) int
	Touch(sessionID string)

	// Sessions returns a point-in-time copy of the activity records.
	Sessions() map[string]time.Time
	// ReleaseIfIdle runs the ReleaseAll path only if the session's last activity is still before cutoff.
	ReleaseIfIdle(sessionID string, cutoff time.Time) (released int, expired bool)
}
