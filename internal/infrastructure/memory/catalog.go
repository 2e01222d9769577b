package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

var (
	_ domain.Catalog       = (*Catalog)(nil)
	_ domain.CatalogWriter = (*Catalog)(nil)
	_ domain.Committer     = (*Catalog)(nil)
)

// Catalog is an in-memory stand-in for the authoritative product store.
type Catalog struct {
	mu    sync.RWMutex
	stock map[string]int
}

func NewCatalog(onHand map[string]int) *Catalog {
	stock := make(map[string]int, len(onHand))
	for id, qty := range onHand {
		stock[id] = qty
	}
	return &Catalog{stock: stock}
}

func (c *Catalog) OnHand(ctx context.Context, productID string) (int, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	qty, ok := c.stock[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return qty, nil
}

func (c *Catalog) List(ctx context.Context) ([]domain.StockLevel, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.StockLevel, 0, len(c.stock))
	for id, qty := range c.stock {
		out = append(out, domain.StockLevel{ProductID: id, OnHand: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (c *Catalog) SetOnHand(ctx context.Context, productID string, qty int) error {
	_ = ctx
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stock[productID] = qty
	return nil
}

// Commit decrements every line or none of them.
func (c *Catalog) Commit(ctx context.Context, lines []domain.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	want := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		want[l.ProductID] += l.Quantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, qty := range want {
		have, ok := c.stock[id]
		if !ok {
			return domain.ErrNotFound
		}
		if have < qty {
			return domain.ErrInsufficientStock
		}
	}
	for id, qty := range want {
		c.stock[id] -= qty
	}
	return nil
}
