package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/obstest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type publisherFunc func(ctx context.Context, e domoutbox.Event) error

func (f publisherFunc) Publish(ctx context.Context, e domoutbox.Event) error { return f(ctx, e) }

type sweepFixture struct {
	store  *memory.CartStore
	ledger *memory.StockLedger
	clock  *clock
	rec    *obstest.Recorder
	events chan domoutbox.Event
}

func newSweepFixture() sweepFixture {
	c := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	ledger := memory.NewStockLedger()
	return sweepFixture{
		store:  memory.NewCartStore(ledger, memory.WithClock(c.Now)),
		ledger: ledger,
		clock:  c,
		rec:    obstest.New(),
		events: make(chan domoutbox.Event, 16),
	}
}

func (f sweepFixture) sweeper(opts ...SweeperOption) *Sweeper {
	pub := publisherFunc(func(_ context.Context, e domoutbox.Event) error {
		f.events <- e
		return nil
	})
	return NewSweeper(f.store, pub, f.rec, opts...)
}

func TestSweepOnceReleasesIdleCarts(t *testing.T) {
	f := newSweepFixture()
	f.ledger.SetStock("p1", 5)
	s := f.sweeper()

	require.True(t, f.store.AddOne("idle", "p1"))
	require.True(t, f.store.AddOne("idle", "p1"))
	idleSince := f.clock.Now()

	f.clock.Advance(15 * time.Minute)
	require.True(t, f.store.AddOne("active", "p1"))

	f.clock.Advance(6 * time.Minute)
	res := s.SweepOnce(f.clock.Now())

	assert.Equal(t, SweepResult{Scanned: 2, Expired: 1, UnitsReleased: 2}, res)
	assert.Zero(t, f.store.QuantityOf("idle", "p1"))
	assert.Equal(t, 1, f.store.QuantityOf("active", "p1"))
	assert.Equal(t, 4, f.ledger.Available("p1"))

	require.Len(t, f.events, 1)
	evt := (<-f.events).(domcart.CartExpiredEvent)
	assert.Equal(t, "idle", evt.SessionID)
	assert.Equal(t, 2, evt.UnitsReleased)
	assert.Equal(t, idleSince, evt.IdleSince)

	assert.Equal(t, float64(1), f.rec.Value(observability.MCartSweeps))
	assert.Equal(t, float64(1), f.rec.Value(observability.MCartSessionsExpired))
	assert.Equal(t, float64(2), f.rec.Value(observability.MCartUnitsReleased))
	assert.Len(t, f.rec.Logs("cart_sweep_done"), 1)
}

func TestSweepOnceTTLBoundary(t *testing.T) {
	f := newSweepFixture()
	f.ledger.SetStock("p1", 1)
	s := f.sweeper(WithIdleTTL(10 * time.Minute))

	require.True(t, f.store.AddOne("s1", "p1"))
	f.clock.Advance(10 * time.Minute)

	res := s.SweepOnce(f.clock.Now())
	assert.Zero(t, res.Expired, "exactly TTL old is not yet idle")

	res = s.SweepOnce(f.clock.Now().Add(time.Nanosecond))
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 1, f.ledger.Available("p1"))
}

func TestSweepOnceExpiresEmptySessions(t *testing.T) {
	f := newSweepFixture()
	s := f.sweeper()

	f.store.Touch("browsing")
	f.clock.Advance(time.Hour)

	res := s.SweepOnce(f.clock.Now())
	assert.Equal(t, SweepResult{Scanned: 1, Expired: 1}, res)
	assert.Empty(t, f.store.Sessions())
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	f := newSweepFixture()
	f.ledger.SetStock("p1", 2)
	s := f.sweeper()
	require.True(t, f.store.AddOne("s1", "p1"))
	f.clock.Advance(time.Hour)

	first := s.SweepOnce(f.clock.Now())
	second := s.SweepOnce(f.clock.Now())

	assert.Equal(t, 1, first.UnitsReleased)
	assert.Equal(t, SweepResult{}, second)
	assert.Equal(t, 2, f.ledger.Available("p1"))
}

func TestSweeperLoop(t *testing.T) {
	f := newSweepFixture()
	f.ledger.SetStock("p1", 1)
	require.True(t, f.store.AddOne("s1", "p1"))
	f.clock.Advance(time.Hour)

	s := f.sweeper(WithInterval(5*time.Millisecond), WithSweepClock(f.clock.Now))
	s.Start(context.Background())
	s.Start(context.Background())

	select {
	case evt := <-f.events:
		assert.Equal(t, "s1", evt.(domcart.CartExpiredEvent).SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never expired the cart")
	}

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, f.ledger.Available("p1"))
	assert.Len(t, f.rec.Logs("cart_sweeper_stopped"), 1)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	f := newSweepFixture()
	s := f.sweeper(WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweepDoesNotRaceWithShoppers(t *testing.T) {
	f := newSweepFixture()
	f.ledger.SetStock("p1", 50)
	s := f.sweeper(WithIdleTTL(time.Nanosecond))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.SweepOnce(f.clock.Now().Add(time.Hour))
			}
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if f.store.AddOne(sid, "p1") {
					f.store.RemoveOne(sid, "p1")
				}
			}
		}(string(rune('a' + i)))
	}
	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	s.SweepOnce(f.clock.Now().Add(time.Hour))

	assert.Equal(t, 50, f.ledger.Available("p1"))
}
