package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domorder "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/obstest"
)

func TestCheckoutWorkerSettlesSoldCart(t *testing.T) {
	ledger := memory.NewStockLedger()
	ledger.SetStock("p1", 3)
	store := memory.NewCartStore(ledger)
	require.True(t, store.AddOne("s1", "p1"))
	require.True(t, store.AddOne("s1", "p1"))

	rec := obstest.New()
	bus := outbox.NewBus(rec)
	NewCheckoutWorker(store, bus, rec).Start()

	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	o, err := domorder.New("o1", "s1", []domorder.Line{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	require.NoError(t, o.Place())
	require.NoError(t, bus.Publish(ctx, domorder.NewOrderPlacedEvent(o)))

	require.Eventually(t, func() bool {
		return len(store.Snapshot("s1")) == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, ledger.Available("p1"), "sold units stay out of the ledger")
	assert.Eventually(t, func() bool {
		return rec.Value(observability.MUsecaseRequests,
			observability.L("use_case", useCaseCheckoutFinish), observability.L("outcome", "success")) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckoutWorkerKeepsUnitsAddedAfterCheckout(t *testing.T) {
	ledger := memory.NewStockLedger()
	ledger.SetStock("p1", 3)
	store := memory.NewCartStore(ledger)
	w := NewCheckoutWorker(store, nil, obstest.New())

	require.True(t, store.AddOne("s1", "p1"))
	o, err := domorder.New("o1", "s1", []domorder.Line{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, o.Place())

	require.True(t, store.AddOne("s1", "p1"), "shopper keeps shopping before the event lands")
	require.NoError(t, w.handleOrderPlaced(context.Background(), domorder.NewOrderPlacedEvent(o)))

	assert.Equal(t, 1, store.QuantityOf("s1", "p1"))
	assert.Equal(t, 1, ledger.Available("p1"), "1 sold + 1 held + 1 available")
}
