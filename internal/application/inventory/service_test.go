package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/obstest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type brokenCatalog struct{}

func (brokenCatalog) OnHand(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}
func (brokenCatalog) List(context.Context) ([]dominv.StockLevel, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	svc     *Service
	ledger  *memory.StockLedger
	catalog *memory.Catalog
	pub     *recordingPublisher
	rec     *obstest.Recorder
}

func newFixture(stock map[string]int) fixture {
	ledger := memory.NewStockLedger()
	catalog := memory.NewCatalog(stock)
	pub := &recordingPublisher{}
	rec := obstest.New()
	return fixture{
		svc:     NewService(ledger, catalog, catalog, pub, rec),
		ledger:  ledger,
		catalog: catalog,
		pub:     pub,
		rec:     rec,
	}
}

func TestAvailableSeedsLazily(t *testing.T) {
	f := newFixture(map[string]int{"p1": 4})
	ctx := context.Background()

	require.False(t, f.ledger.HasEntry("p1"))
	got, err := f.svc.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.True(t, f.ledger.HasEntry("p1"))

	require.NoError(t, f.catalog.SetOnHand(ctx, "p1", 100))
	got, err = f.svc.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, got, "seeding happens once")
}

func TestAvailableUnknownProduct(t *testing.T) {
	f := newFixture(nil)

	got, err := f.svc.Available(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.False(t, f.ledger.HasEntry("ghost"))
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(map[string]int{"p1": 1})
	ctx := context.Background()

	ok, err := f.svc.ReserveOne(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.ReserveOne(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	f.svc.ReleaseOne(ctx, "p1")
	got, _ := f.svc.Available(ctx, "p1")
	assert.Equal(t, 1, got)

	f.svc.ReleaseOne(ctx, "never-seen")
	assert.False(t, f.ledger.HasEntry("never-seen"))

	assert.Equal(t, float64(1), f.rec.Value(observability.MUsecaseRequests,
		observability.L("use_case", useCaseReserve), observability.L("outcome", "success")),
		"out of stock is a normal result, not an error")
}

func TestSetStockWritesCatalogAndLedger(t *testing.T) {
	f := newFixture(map[string]int{"p1": 1})
	ctx := context.Background()
	require.True(t, f.ledger.ReserveOne("p1"))

	require.NoError(t, f.svc.SetStock(ctx, "p1", 7))

	assert.Equal(t, 7, f.ledger.Available("p1"))
	onHand, err := f.catalog.OnHand(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, onHand)

	require.Len(t, f.pub.events, 1)
	evt, ok := f.pub.events[0].(dominv.StockAdjustedEvent)
	require.True(t, ok)
	assert.Equal(t, "p1", evt.ProductID)
	assert.Equal(t, 7, evt.Quantity)
}

func TestSetStockRejectsInvalidInput(t *testing.T) {
	f := newFixture(map[string]int{"p1": 3})
	ctx := context.Background()

	err := f.svc.SetStock(ctx, "p1", -1)
	assert.ErrorIs(t, err, application.ErrValidation)
	assert.ErrorIs(t, err, dominv.ErrInvalidQuantity)
	assert.False(t, f.ledger.HasEntry("p1"))

	assert.ErrorIs(t, f.svc.SetStock(ctx, "", 1), application.ErrValidation)
	assert.Empty(t, f.pub.events)
}

func TestSetStockSurvivesPublishFailure(t *testing.T) {
	f := newFixture(nil)
	f.pub.err = errors.New("bus closed")

	require.NoError(t, f.svc.SetStock(context.Background(), "p1", 2))
	assert.Equal(t, 2, f.ledger.Available("p1"))
	assert.Len(t, f.rec.Logs("event_publish_failed"), 1)
}

func TestSeedAll(t *testing.T) {
	f := newFixture(map[string]int{"p1": 2, "p2": 5})
	f.ledger.SetStock("p2", 1)

	n, err := f.svc.SeedAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.ledger.Available("p1"))
	assert.Equal(t, 1, f.ledger.Available("p2"), "existing entries are kept")
}

func TestCatalogFailuresSurface(t *testing.T) {
	ledger := memory.NewStockLedger()
	svc := NewService(ledger, brokenCatalog{}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Available(ctx, "p1")
	assert.ErrorIs(t, err, ErrCatalog)

	_, err = svc.ReserveOne(ctx, "p1")
	assert.ErrorIs(t, err, ErrCatalog)

	_, err = svc.SeedAll(ctx)
	assert.ErrorIs(t, err, ErrCatalog)

	require.NoError(t, svc.SetStock(ctx, "p1", 3), "no writer configured")
	assert.Equal(t, 3, ledger.Available("p1"))
}
