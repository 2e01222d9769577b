package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	orderService     = "order-service"
	useCaseCheckout  = "order.checkout"
	useCaseGetOrder  = "order.get"
	commitPeer       = "catalog"
	commitEndpoint   = "commit"
	publishTimeout   = 300 * time.Millisecond
	rejectedByStock  = "insufficient stock"
	rejectedByCommit = "stock commit failed"
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrEmptyCart  = domain.ErrEmptyCart
	ErrRepository = errors.New("order: repository failure")
	ErrCommit     = errors.New("order: stock commit failure")
)

var _ application.UseCase[CheckoutInput, *CheckoutResult] = (*CheckoutUseCase)(nil)

// CheckoutUseCase turns a session's cart into an order and commits it against authoritative stock.
// The ledger is not touched: the cart's units were already claimed when they were added.
type CheckoutUseCase struct {
	cart        CartPort
	committer   dominv.Committer
	repo        domain.Repository
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	obs         *application.Instrument

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewCheckoutUseCase(
	cart CartPort,
	committer dominv.Committer,
	repo domain.Repository,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CheckoutUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &CheckoutUseCase{
		cart:         cart,
		committer:    committer,
		repo:         repo,
		idGenerator:  idGen,
		publisher:    publisher,
		obs:          application.NewInstrument(tel, orderService),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

type CheckoutInput struct {
	SessionID string
}

type CheckoutResult struct {
	OrderID string
	Status  domain.Status
	Lines   []domain.Line
}

// Execute places an order for the session's cart. A stock shortfall persists a rejected order
// and returns an error wrapping inventory.ErrInsufficientStock; the cart is left as it was.
func (uc *CheckoutUseCase) Execute(ctx context.Context, cmd CheckoutInput) (_ *CheckoutResult, err error) {
	ctx, call := uc.obs.Begin(ctx, useCaseCheckout, "Checkout")
	defer func() { call.End(err) }()
	span := call.Span()

	if cmd.SessionID == "" {
		call.Fail("SESSION_ID_REQUIRED")
		return nil, application.NewValidation("session id is required")
	}

	snap := uc.cart.Snapshot(cmd.SessionID)
	if len(snap) == 0 {
		call.Fail("EMPTY_CART")
		return nil, ErrEmptyCart
	}
	lines := linesOf(snap)

	entity, derr := domain.New(uc.idGenerator.NewID(), cmd.SessionID, lines)
	if derr != nil {
		call.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, fmt.Errorf("order: construct: %w", derr)
	}
	call.Field("order_id", entity.ID)
	span.SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.Int("order.units", entity.Units()),
	)

	if err := uc.repo.Insert(ctx, entity); err != nil {
		call.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}

	if cerr := uc.commit(ctx, entity); cerr != nil {
		reason := rejectedByCommit
		if errors.Is(cerr, dominv.ErrInsufficientStock) {
			reason = rejectedByStock
		}
		call.Fail("STOCK_COMMIT_FAILED")
		if rerr := entity.Reject(reason); rerr != nil {
			return nil, fmt.Errorf("order: reject: %w", rerr)
		}
		if uerr := uc.repo.Update(ctx, entity); uerr != nil {
			return nil, wrapRepositoryError(uerr)
		}
		uc.publish(ctx, call, domain.NewOrderRejectedEvent(entity))
		return &CheckoutResult{OrderID: entity.ID, Status: entity.Status, Lines: entity.Lines},
			fmt.Errorf("%w: %w", ErrCommit, cerr)
	}

	if err := entity.Place(); err != nil {
		call.Fail("STATE_TRANSITION_FAILED")
		return nil, fmt.Errorf("order: place: %w", err)
	}
	if err := uc.repo.Update(ctx, entity); err != nil {
		call.Fail("REPO_UPDATE_FAILED")
		return nil, wrapRepositoryError(err)
	}

	if !uc.publish(ctx, call, domain.NewOrderPlacedEvent(entity)) {
		// Nobody will hear about the sale; settle here so the sweeper cannot hand sold units back.
		uc.cart.Settle(cmd.SessionID, snap)
	}

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.placed",
		trace.WithAttributes(attribute.String("order.id", entity.ID)),
	)
	return &CheckoutResult{OrderID: entity.ID, Status: entity.Status, Lines: entity.Lines}, nil
}

// Checkout preserves the method-style entry point used by the HTTP layer.
func (uc *CheckoutUseCase) Checkout(ctx context.Context, sessionID string) (*CheckoutResult, error) {
	return uc.Execute(ctx, CheckoutInput{SessionID: sessionID})
}

// GetOrder loads a previously placed or rejected order.
func (uc *CheckoutUseCase) GetOrder(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, call := uc.obs.Begin(ctx, useCaseGetOrder, "GetOrder",
		attribute.String("order.id", id),
	)
	defer func() { call.End(err) }()

	if id == "" {
		call.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("order id is required")
	}
	o, err := uc.repo.Get(ctx, id)
	if err != nil {
		call.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

func (uc *CheckoutUseCase) commit(ctx context.Context, o *domain.Order) error {
	start := time.Now()
	outcome := "success"

	lines := make([]dominv.Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, dominv.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	err := uc.committer.Commit(ctx, lines)
	if err != nil {
		outcome = "error"
	}

	uc.extCounter.Add(1,
		observability.L("peer", commitPeer),
		observability.L("endpoint", commitEndpoint),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", commitPeer),
		observability.L("endpoint", commitEndpoint),
	)
	return err
}

// publish is best-effort; it reports whether the event was enqueued.
func (uc *CheckoutUseCase) publish(ctx context.Context, call *application.Call, e domoutbox.Event) bool {
	if uc.publisher == nil {
		return false
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := uc.publisher.Publish(pubCtx, e); err != nil {
		call.Span().RecordError(err)
		call.Field("event_publish_error", err.Error())
		call.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
		return false
	}
	return true
}

func linesOf(snap map[string]int) []domain.Line {
	lines := make([]domain.Line, 0, len(snap))
	for productID, qty := range snap {
		lines = append(lines, domain.Line{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
