package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrEmptyCart              = errors.New("order: cart is empty")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPlaced   Status = "placed"
	StatusRejected Status = "rejected"
)

// Line is a product and the quantity ordered.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID            string
	SessionID     string
	Lines         []Line
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	state OrderState
}

func New(id, sessionID string, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:        id,
		SessionID: sessionID,
		Lines:     append([]Line(nil), lines...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.setState(pendingState{})
	return o, nil
}

// Place marks the order as committed against authoritative stock.
func (o *Order) Place() error {
	next, err := o.currentState().OnCommitted(o)
	if err != nil {
		return err
	}
	o.setState(next)
	return nil
}

// Reject records why the stock commit failed.
func (o *Order) Reject(reason string) error {
	next, err := o.currentState().OnCommitFailed(o, reason)
	if err != nil {
		return err
	}
	o.setState(next)
	return nil
}

// Units is the total quantity across all lines.
func (o *Order) Units() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}

func (o *Order) currentState() OrderState {
	if o.state == nil {
		o.state = stateFor(o.Status)
	}
	return o.state
}

func (o *Order) setState(s OrderState) {
	o.state = s
	o.Status = s.Status()
	o.UpdatedAt = time.Now().UTC()
}
