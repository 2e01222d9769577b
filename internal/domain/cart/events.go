package cart

import "time"

// CartExpiredEvent is emitted when the idle sweeper force-releases an abandoned cart.
type CartExpiredEvent struct {
	SessionID     string
	UnitsReleased int
	IdleSince     time.Time
	OccurredAt    time.Time
}

func (CartExpiredEvent) EventName() string { return "cart.expired" }

func NewCartExpiredEvent(sessionID string, units int, idleSince time.Time) CartExpiredEvent {
	return CartExpiredEvent{
		SessionID:     sessionID,
		UnitsReleased: units,
		IdleSince:     idleSince,
		OccurredAt:    time.Now().UTC(),
	}
}
