package cart

import (
	"context"
	"sync"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	componentSweeper = "cart_sweeper"
	publishTimeout   = 300 * time.Millisecond
)

// SweepResult summarises one sweep cycle.
type SweepResult struct {
	Scanned       int
	Expired       int
	UnitsReleased int
}

type SweeperOption func(*Sweeper)

func WithIdleTTL(ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepClock overrides the time source used by the background loop.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper periodically releases carts whose sessions have been idle longer than the TTL.
type Sweeper struct {
	store     domcart.Store
	publisher domoutbox.Publisher
	ttl       time.Duration
	interval  time.Duration
	now       func() time.Time
	log       observability.Logger

	sweeps   observability.Counter // cart_sweeps_total
	expired  observability.Counter // cart_sessions_expired_total
	released observability.Counter // cart_units_released_total

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store domcart.Store, publisher domoutbox.Publisher, tel observability.Observability, opts ...SweeperOption) *Sweeper {
	if tel == nil {
		tel = observability.Nop()
	}
	s := &Sweeper{
		store:     store,
		publisher: publisher,
		ttl:       domcart.DefaultIdleTTL,
		interval:  domcart.DefaultSweepInterval,
		now:       time.Now,
		log:       tel.Logger().With(observability.F("component", componentSweeper)),
		sweeps:    tel.Metrics().Counter(observability.MCartSweeps),
		expired:   tel.Metrics().Counter(observability.MCartSessionsExpired),
		released:  tel.Metrics().Counter(observability.MCartUnitsReleased),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.Info("cart_sweeper_started",
		observability.F("idle_ttl", s.ttl.String()),
		observability.F("interval", s.interval.String()),
	)
}

// Stop cancels the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("cart_sweeper_stopped")
}

// Run blocks until ctx is cancelled, for use under an errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, s.now())
		}
	}
}

// SweepOnce runs one cycle synchronously against the supplied instant.
func (s *Sweeper) SweepOnce(now time.Time) SweepResult {
	return s.sweep(context.Background(), now)
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) SweepResult {
	start := time.Now()
	cutoff := now.Add(-s.ttl)

	var res SweepResult
	for sessionID, last := range s.store.Sessions() {
		res.Scanned++
		if !last.Before(cutoff) {
			continue
		}
		units, expired := s.store.ReleaseIfIdle(sessionID, cutoff)
		if !expired {
			continue
		}
		res.Expired++
		res.UnitsReleased += units
		s.publishExpired(ctx, domcart.NewCartExpiredEvent(sessionID, units, last))
	}

	s.sweeps.Add(1)
	if res.Expired > 0 {
		s.expired.Add(float64(res.Expired))
		s.released.Add(float64(res.UnitsReleased))
	}

	level := s.log.Debug
	if res.Expired > 0 {
		level = s.log.Info
	}
	level("cart_sweep_done",
		observability.F("scanned", res.Scanned),
		observability.F("expired", res.Expired),
		observability.F("units_released", res.UnitsReleased),
		observability.F("latency_seconds", time.Since(start).Seconds()),
	)
	return res
}

func (s *Sweeper) publishExpired(ctx context.Context, evt domcart.CartExpiredEvent) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, evt); err != nil {
		s.log.Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("session_id", evt.SessionID),
			observability.F("error", err.Error()),
		)
	}
}
