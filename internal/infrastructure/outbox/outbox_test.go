package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
)

type testEvent struct{ name, payload string }

func (e testEvent) EventName() string { return e.name }

func TestBusFansOutToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	wg.Add(2)
	record := func(tag string) domoutbox.Handler {
		return func(_ context.Context, e domoutbox.Event) error {
			defer wg.Done()
			mu.Lock()
			got = append(got, tag+":"+e.(testEvent).payload)
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe("cart.expired", record("a"))
	bus.Subscribe("cart.expired", record("b"))
	bus.Subscribe("other", func(context.Context, domoutbox.Event) error {
		t.Error("unexpected delivery")
		return nil
	})

	bus.Start(ctx)
	defer bus.Stop(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent{name: "cart.expired", payload: "s1"}))
	waitTimeout(t, &wg)

	assert.ElementsMatch(t, []string{"a:s1", "b:s1"}, got)
}

func TestBusSurvivesFailingHandlers(t *testing.T) {
	bus := NewBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	delivered := make(chan struct{}, 1)
	bus.Subscribe("x", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("x", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("y", func(context.Context, domoutbox.Event) error {
		delivered <- struct{}{}
		return nil
	})

	require.NoError(t, bus.Publish(ctx, testEvent{name: "x"}))
	require.NoError(t, bus.Publish(ctx, testEvent{name: "y"}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("event after failing handlers was not delivered")
	}
}

func TestBusPublishAfterStop(t *testing.T) {
	bus := NewBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	bus.Stop(ctx)
	bus.Stop(ctx)

	assert.ErrorIs(t, bus.Publish(ctx, testEvent{name: "x"}), ErrClosed)
	assert.NoError(t, bus.Publish(ctx, nil))
}

func TestBusPublishHonoursContext(t *testing.T) {
	bus := NewBus(nil)
	for i := 0; i < defaultQueueSize; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, testEvent{name: "x"}), context.Canceled)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}
