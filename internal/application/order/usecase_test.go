package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/obstest"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return "order-" + string(rune('0'+s.n))
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type checkoutFixture struct {
	uc      *CheckoutUseCase
	store   *memory.CartStore
	ledger  *memory.StockLedger
	catalog *memory.Catalog
	repo    *memory.OrderRepository
	pub     *capturePublisher
	rec     *obstest.Recorder
}

func newCheckoutFixture(stock map[string]int) checkoutFixture {
	ledger := memory.NewStockLedger()
	for id, qty := range stock {
		ledger.SetStock(id, qty)
	}
	f := checkoutFixture{
		store:   memory.NewCartStore(ledger),
		ledger:  ledger,
		catalog: memory.NewCatalog(stock),
		repo:    memory.NewOrderRepository(),
		pub:     &capturePublisher{},
		rec:     obstest.New(),
	}
	f.uc = NewCheckoutUseCase(f.store, f.catalog, f.repo, &seqIDs{}, f.pub, f.rec)
	return f
}

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newCheckoutFixture(map[string]int{"p1": 3, "p2": 1})
	ctx := context.Background()
	require.True(t, f.store.AddOne("s1", "p2"))
	require.True(t, f.store.AddOne("s1", "p1"))
	require.True(t, f.store.AddOne("s1", "p1"))

	res, err := f.uc.Execute(ctx, CheckoutInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, domain.StatusPlaced, res.Status)
	assert.Equal(t, []domain.Line{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}, res.Lines)

	onHand, _ := f.catalog.OnHand(ctx, "p1")
	assert.Equal(t, 1, onHand)
	assert.Equal(t, 1, f.ledger.Available("p1"), "checkout never touches the ledger")

	stored, err := f.uc.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaced, stored.Status)

	require.Len(t, f.pub.events, 1)
	placed, ok := f.pub.events[0].(domain.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, "s1", placed.SessionID)
	assert.Equal(t, 2, f.store.QuantityOf("s1", "p1"), "cart is settled by the worker, not here")

	assert.Equal(t, float64(1), f.rec.Value(observability.MExternalRequests,
		observability.L("peer", commitPeer), observability.L("endpoint", commitEndpoint), observability.L("outcome", "success")))
}

func TestCheckoutRejectsOnShortfall(t *testing.T) {
	f := newCheckoutFixture(map[string]int{"p1": 2})
	ctx := context.Background()
	require.True(t, f.store.AddOne("s1", "p1"))
	require.True(t, f.store.AddOne("s1", "p1"))
	require.NoError(t, f.catalog.SetOnHand(ctx, "p1", 1))

	res, err := f.uc.Checkout(ctx, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, dominv.ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrCommit)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusRejected, res.Status)

	stored, err := f.uc.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, stored.Status)
	assert.Equal(t, rejectedByStock, stored.FailureReason)

	require.Len(t, f.pub.events, 1)
	_, ok := f.pub.events[0].(domain.OrderRejectedEvent)
	assert.True(t, ok)
	assert.Equal(t, 2, f.store.QuantityOf("s1", "p1"), "rejected checkout leaves the cart alone")
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(nil)

	_, err := f.uc.Execute(context.Background(), CheckoutInput{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.uc.Execute(context.Background(), CheckoutInput{})
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestCheckoutSettlesCartWhenPublishFails(t *testing.T) {
	f := newCheckoutFixture(map[string]int{"p1": 1})
	f.pub.err = errors.New("bus closed")
	require.True(t, f.store.AddOne("s1", "p1"))

	res, err := f.uc.Checkout(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaced, res.Status)
	assert.Empty(t, f.store.Snapshot("s1"))
	assert.Zero(t, f.ledger.Available("p1"))
}

func TestGetOrderErrors(t *testing.T) {
	f := newCheckoutFixture(nil)

	_, err := f.uc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.uc.GetOrder(context.Background(), "")
	assert.ErrorIs(t, err, application.ErrValidation)
}
