package order

import (
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
)

type IDGenerator interface {
	NewID() string
}

// CartPort is the slice of the cart store checkout needs.
type CartPort interface {
	Snapshot(sessionID string) domcart.Snapshot
	Settle(sessionID string, sold domcart.Snapshot) int
}
