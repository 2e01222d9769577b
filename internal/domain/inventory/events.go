package inventory

import "time"

// StockAdjustedEvent is emitted when an administrator overwrites a product's stock.
type StockAdjustedEvent struct {
	ProductID  string
	Quantity   int
	OccurredAt time.Time
}

func (StockAdjustedEvent) EventName() string { return "inventory.stock_adjusted" }

func NewStockAdjustedEvent(productID string, quantity int) StockAdjustedEvent {
	return StockAdjustedEvent{
		ProductID:  productID,
		Quantity:   quantity,
		OccurredAt: time.Now().UTC(),
	}
}
