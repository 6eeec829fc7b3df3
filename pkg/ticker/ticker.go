// Package ticker scans the cached window every second for due timers,
// claims them, and hands each claimed timer to a dispatch function, per
// SPEC_FULL.md §4.C.
package ticker

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Rocket-Innovation/mca-timer/pkg/cache"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// DefaultInterval is the claim scan cadence.
const DefaultInterval = 1 * time.Second

// DefaultMaxConcurrent is 0: unbounded. Callers that want to cap how many
// timers are dispatched at once per tick pass WithMaxConcurrent.
const DefaultMaxConcurrent = 0

// Dispatch is called once per successfully claimed timer. The Ticker
// records the outcome in the Store: a nil error marks the timer
// Completed, a non-nil error marks it Failed with the error's text.
type Dispatch func(ctx context.Context, id string) error

// Ticker drives the per-second claim-and-dispatch loop.
type Ticker struct {
	store         timerstore.Store
	cache         *cache.Cache
	dispatch      Dispatch
	interval      time.Duration
	maxConcurrent int64
	isLeader      func() bool
	log           logr.Logger

	claimed  prometheus.Counter
	lost     prometheus.Counter
	tickDur  prometheus.Histogram
}

// Option customizes a Ticker at construction time.
type Option func(*Ticker)

func WithInterval(d time.Duration) Option {
	return func(t *Ticker) { t.interval = d }
}

func WithMaxConcurrent(n int) Option {
	return func(t *Ticker) { t.maxConcurrent = int64(n) }
}

// WithLeaderCheck gates each scan on isLeader(): when it returns false,
// the tick is skipped entirely. Losing the lease stops the Ticker, per
// SPEC_FULL.md §5.
func WithLeaderCheck(isLeader func() bool) Option {
	return func(t *Ticker) { t.isLeader = isLeader }
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(t *Ticker) {
		t.claimed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timer_ticker_claims_total",
			Help: "Number of timers this engine instance successfully claimed.",
		})
		t.lost = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timer_ticker_claim_races_lost_total",
			Help: "Number of claim attempts lost to a concurrent claimant.",
		})
		t.tickDur = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timer_ticker_tick_duration_seconds",
			Help:    "Wall time spent processing one claim-scan tick.",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(t.claimed, t.lost, t.tickDur)
	}
}

// New constructs a Ticker. dispatch is invoked for every timer this
// instance successfully claims.
func New(store timerstore.Store, c *cache.Cache, dispatch Dispatch, opts ...Option) *Ticker {
	t := &Ticker{
		store:         store,
		cache:         c,
		dispatch:      dispatch,
		interval:      DefaultInterval,
		maxConcurrent: DefaultMaxConcurrent,
		log:           logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Ticker) WithLogger(log logr.Logger) *Ticker {
	t.log = log.WithName("ticker")
	return t
}

// Run blocks, scanning the cached window every interval until ctx is
// canceled. Each tick fires at a fixed wall-clock cadence rather than a
// fixed delay after the previous tick finishes, so slow ticks don't drift
// the schedule.
func (t *Ticker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			if err := t.scan(ctx, now); err != nil {
				t.log.Error(err, "claim scan failed")
			}
		}
	}
}

func (t *Ticker) scan(ctx context.Context, now time.Time) error {
	if t.isLeader != nil && !t.isLeader() {
		return nil
	}
	start := time.Now()
	defer func() {
		if t.tickDur != nil {
			t.tickDur.Observe(time.Since(start).Seconds())
		}
	}()

	w := t.cache.Load()
	if w == nil {
		return nil
	}
	due := w.Due(now)
	if len(due) == 0 {
		return nil
	}

	var sem *semaphore.Weighted
	if t.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(t.maxConcurrent)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range due {
		id := id
		if sem != nil {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
		}
		g.Go(func() error {
			if sem != nil {
				defer sem.Release(1)
			}
			t.claimAndDispatch(gctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (t *Ticker) claimAndDispatch(ctx context.Context, id string) {
	claimed, err := t.store.ClaimDue(ctx, id)
	if err != nil {
		t.log.Error(err, "claim failed", "timer_id", id)
		return
	}
	if !claimed {
		if t.lost != nil {
			t.lost.Inc()
		}
		return
	}
	t.cache.Evict(id)
	if t.claimed != nil {
		t.claimed.Inc()
	}

	if err := t.dispatch(ctx, id); err != nil {
		if markErr := t.store.MarkFailed(ctx, id, err.Error()); markErr != nil {
			t.log.Error(markErr, "failed to mark timer failed", "timer_id", id)
		}
		return
	}
	if err := t.store.MarkCompleted(ctx, id); err != nil {
		t.log.Error(err, "failed to mark timer completed", "timer_id", id)
	}
}
