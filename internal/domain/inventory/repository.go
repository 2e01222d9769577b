package inventory

import (
	"context"
)

// Ledger holds, per product, the units currently claimable by shoppers.
// Implementations are process-local and safe for concurrent use; no method blocks or fails.
type Ledger interface {
	SetStock(productID string, qty int)
	SeedIfAbsent(productID string, qty int)
	HasEntry(productID string) bool
	Available(productID string) int
	ReserveOne(productID string) bool
	ReleaseOne(productID string)
}

// Catalog is the read side of the authoritative product store.
type Catalog interface {
	OnHand(ctx context.Context, productID string) (int, error)
	List(ctx context.Context) ([]StockLevel, error)
}

// CatalogWriter lets administrators correct authoritative stock.
type CatalogWriter interface {
	SetOnHand(ctx context.Context, productID string, qty int) error
}

// Committer decrements authoritative stock when an order is placed.
// Commit is all-or-nothing: on ErrInsufficientStock no line is applied.
type Committer interface {
	Commit(ctx context.Context, lines []Line) error
}
