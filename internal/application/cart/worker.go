package cart

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	workerService         = "cart-worker"
	useCaseCheckoutFinish = "cart.worker.order_placed"
)

// CheckoutWorker settles a session's cart once its order has been placed. Only the ordered
// quantities leave the cart and they are not returned to the ledger, since they were sold.
type CheckoutWorker struct {
	store      domcart.Store
	subscriber domoutbox.Subscriber
	obs        *application.Instrument
}

func NewCheckoutWorker(store domcart.Store, subscriber domoutbox.Subscriber, tel observability.Observability) *CheckoutWorker {
	return &CheckoutWorker{
		store:      store,
		subscriber: subscriber,
		obs:        application.NewInstrument(tel, workerService),
	}
}

func (w *CheckoutWorker) Start() {
	if w.subscriber == nil || w.store == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *CheckoutWorker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domorder.OrderPlacedEvent)
	_, call := w.obs.Begin(ctx, useCaseCheckoutFinish, "OrderPlaced",
		attribute.String("event", e.EventName()),
	)
	defer func() { call.End(err) }()

	if !ok {
		call.Outcome, call.Status = "ignored", "UNEXPECTED_EVENT"
		return nil
	}
	call.Field("order_id", evt.OrderID)
	call.Span().SetAttributes(attribute.String("order.id", evt.OrderID))

	sold := make(domcart.Snapshot, len(evt.Lines))
	for _, l := range evt.Lines {
		sold[l.ProductID] += l.Quantity
	}
	call.Field("units_settled", w.store.Settle(evt.SessionID, sold))
	return nil
}
