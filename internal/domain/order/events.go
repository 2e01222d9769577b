package order

import "time"

// OrderPlacedEvent is emitted once an order's stock has been committed.
// The cart context reacts by settling the ordered lines out of the session's cart without returning them to the ledger.
type OrderPlacedEvent struct {
	OrderID    string
	SessionID  string
	Lines      []Line
	OccurredAt time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:    o.ID,
		SessionID:  o.SessionID,
		Lines:      append([]Line(nil), o.Lines...),
		OccurredAt: time.Now().UTC(),
	}
}

// OrderRejectedEvent is emitted when the stock commit fails.
type OrderRejectedEvent struct {
	OrderID    string
	SessionID  string
	Reason     string
	OccurredAt time.Time
}

func (OrderRejectedEvent) EventName() string { return "order.rejected" }

func NewOrderRejectedEvent(o *Order) OrderRejectedEvent {
	return OrderRejectedEvent{
		OrderID:    o.ID,
		SessionID:  o.SessionID,
		Reason:     o.FailureReason,
		OccurredAt: time.Now().UTC(),
	}
}
