package order

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnCommitted(o *Order) (OrderState, error)
	OnCommitFailed(o *Order, reason string) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusPlaced:
		return placedState{}
	case StatusRejected:
		return rejectedState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnCommitted(o *Order) (OrderState, error) {
	o.FailureReason = ""
	return placedState{}, nil
}

func (pendingState) OnCommitFailed(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return rejectedState{}, nil
}

type placedState struct{}

func (placedState) Status() Status { return StatusPlaced }

func (placedState) OnCommitted(*Order) (OrderState, error) {
	return placedState{}, nil
}

func (placedState) OnCommitFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type rejectedState struct{}

func (rejectedState) Status() Status { return StatusRejected }

func (rejectedState) OnCommitted(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectedState) OnCommitFailed(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return rejectedState{}, nil
}
