package memory

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

var _ domain.Ledger = (*StockLedger)(nil)

// StockLedger is the process-local count of claimable units per product.
// Each product has its own atomic counter, so contention on one product never serializes another.
type StockLedger struct {
	stock cmap.ConcurrentMap[string, *atomic.Int64]
}

func NewStockLedger() *StockLedger {
	return &StockLedger{
		stock: cmap.New[*atomic.Int64](),
	}
}

// SetStock overwrites the available count. Negative quantities are clamped to zero.
// An existing counter is stored into rather than replaced so in-flight reservations keep racing on it.
func (l *StockLedger) SetStock(productID string, qty int) {
	n := clampQty(qty)
	l.stock.Upsert(productID, nil, func(exist bool, cur *atomic.Int64, _ *atomic.Int64) *atomic.Int64 {
		if exist && cur != nil {
			cur.Store(n)
			return cur
		}
		return newCounter(n)
	})
}

func (l *StockLedger) SeedIfAbsent(productID string, qty int) {
	l.stock.SetIfAbsent(productID, newCounter(clampQty(qty)))
}

func (l *StockLedger) HasEntry(productID string) bool {
	return l.stock.Has(productID)
}

func (l *StockLedger) Available(productID string) int {
	c, ok := l.stock.Get(productID)
	if !ok {
		return 0
	}
	return int(c.Load())
}

// ReserveOne claims a single unit. It never blocks: the CAS loop only retries when
// another caller changed the counter between the load and the swap.
func (l *StockLedger) ReserveOne(productID string) bool {
	c := l.counter(productID)
	for {
		cur := c.Load()
		if cur <= 0 {
			return false
		}
		if c.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// ReleaseOne returns a unit. Releasing a product with no entry is a no-op.
func (l *StockLedger) ReleaseOne(productID string) {
	if c, ok := l.stock.Get(productID); ok {
		c.Add(1)
	}
}

func (l *StockLedger) counter(productID string) *atomic.Int64 {
	if c, ok := l.stock.Get(productID); ok {
		return c
	}
	return l.stock.Upsert(productID, nil, func(exist bool, cur *atomic.Int64, _ *atomic.Int64) *atomic.Int64 {
		if exist && cur != nil {
			return cur
		}
		return newCounter(0)
	})
}

func newCounter(n int64) *atomic.Int64 {
	c := new(atomic.Int64)
	c.Store(n)
	return c
}

func clampQty(qty int) int64 {
	if qty < 0 {
		return 0
	}
	return int64(qty)
}
