package inventory

import "errors"

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must not be negative")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// StockLevel is the authoritative on-hand quantity of a product as reported by the catalog.
type StockLevel struct {
	ProductID string
	OnHand    int
}

// Line is one product/quantity pair committed against authoritative stock.
type Line struct {
	ProductID string
	Quantity  int
}
