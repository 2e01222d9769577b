package memory

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

var _ domain.Store = (*CartStore)(nil)

// sessionCart holds productID -> reserved quantity for one session.
// Writes only happen inside the owning shard's callback in CartStore.carts; reads go straight to items.
type sessionCart struct {
	items cmap.ConcurrentMap[string, int]
}

func newSessionCart() *sessionCart {
	return &sessionCart{items: cmap.New[int]()}
}

// CartStore keeps per-session reservations on top of a stock ledger.
type CartStore struct {
	ledger   inventory.Ledger
	carts    cmap.ConcurrentMap[string, *sessionCart]
	activity cmap.ConcurrentMap[string, time.Time]
	now      func() time.Time
}

type CartStoreOption func(*CartStore)

// WithClock overrides the time source used for activity timestamps.
func WithClock(now func() time.Time) CartStoreOption {
	return func(s *CartStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCartStore(ledger inventory.Ledger, opts ...CartStoreOption) *CartStore {
	s := &CartStore{
		ledger:   ledger,
		carts:    cmap.New[*sessionCart](),
		activity: cmap.New[time.Time](),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddOne reserves one unit from the ledger and, only on success, records it in the session's cart.
// Activity is touched before the ledger call so a concurrent sweep re-checks a fresh timestamp, and
// again after the cart write so a cart created behind a concurrent ReleaseAll still has an activity record.
func (s *CartStore) AddOne(sessionID, productID string) bool {
	s.Touch(sessionID)
	if !s.ledger.ReserveOne(productID) {
		return false
	}

	s.carts.Upsert(sessionID, nil, func(exist bool, c *sessionCart, _ *sessionCart) *sessionCart {
		if !exist || c == nil {
			c = newSessionCart()
		}
		c.items.Upsert(productID, 1, func(exist bool, cur int, delta int) int {
			if exist {
				return cur + delta
			}
			return delta
		})
		return c
	})
	s.Touch(sessionID)
	return true
}

// RemoveOne drops one unit from the session's cart and returns it to the ledger.
// The product key disappears at zero and the session disappears with its last product.
func (s *CartStore) RemoveOne(sessionID, productID string) bool {
	s.Touch(sessionID)

	removed := false
	s.carts.RemoveCb(sessionID, func(_ string, c *sessionCart, exists bool) bool {
		if !exists || c == nil {
			return false
		}
		qty, ok := c.items.Get(productID)
		if !ok || qty <= 0 {
			return false
		}
		if qty == 1 {
			c.items.Remove(productID)
		} else {
			c.items.Set(productID, qty-1)
		}
		removed = true
		return c.items.IsEmpty()
	})

	if removed {
		s.ledger.ReleaseOne(productID)
	}
	return removed
}

func (s *CartStore) QuantityOf(sessionID, productID string) int {
	s.Touch(sessionID)
	c, ok := s.carts.Get(sessionID)
	if !ok || c == nil {
		return 0
	}
	qty, _ := c.items.Get(productID)
	return qty
}

// Snapshot returns a copy of the session's cart; mutating it never affects the store.
func (s *CartStore) Snapshot(sessionID string) domain.Snapshot {
	s.Touch(sessionID)
	c, ok := s.carts.Get(sessionID)
	if !ok || c == nil {
		return domain.Snapshot{}
	}
	return domain.Snapshot(c.items.Items())
}

// ReleaseAll returns every unit the session holds to the ledger and forgets the session.
// Calling it on an unknown or already-released session is a no-op.
func (s *CartStore) ReleaseAll(sessionID string) int {
	s.activity.Remove(sessionID)
	return s.releaseCart(sessionID)
}

// Settle takes sold units out of the session's cart without returning them to the ledger.
// Each product drops by at most its sold quantity, so units added after the sale stay reserved.
// The cart goes away once empty; its activity record is left for the sweeper.
func (s *CartStore) Settle(sessionID string, sold domain.Snapshot) int {
	settled := 0
	s.carts.RemoveCb(sessionID, func(_ string, c *sessionCart, exists bool) bool {
		if !exists || c == nil {
			return false
		}
		for productID, qty := range sold {
			held, ok := c.items.Get(productID)
			if !ok || qty <= 0 {
				continue
			}
			n := min(held, qty)
			if held <= n {
				c.items.Remove(productID)
			} else {
				c.items.Set(productID, held-n)
			}
			settled += n
		}
		return c.items.IsEmpty()
	})
	return settled
}

func (s *CartStore) Touch(sessionID string) {
	s.activity.Set(sessionID, s.now())
}

func (s *CartStore) Sessions() map[string]time.Time {
	return s.activity.Items()
}

// ReleaseIfIdle removes the activity record only if it is still older than cutoff,
// so a session touched after the sweeper's scan survives the cycle.
func (s *CartStore) ReleaseIfIdle(sessionID string, cutoff time.Time) (int, bool) {
	expired := s.activity.RemoveCb(sessionID, func(_ string, last time.Time, exists bool) bool {
		return exists && last.Before(cutoff)
	})
	if !expired {
		return 0, false
	}
	return s.releaseCart(sessionID), true
}

func (s *CartStore) releaseCart(sessionID string) int {
	c, ok := s.carts.Pop(sessionID)
	if !ok || c == nil {
		return 0
	}

	released := 0
	for productID, qty := range c.items.Items() {
		for i := 0; i < qty; i++ {
			s.ledger.ReleaseOne(productID)
			released++
		}
	}
	return released
}
