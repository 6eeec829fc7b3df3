// Package loader periodically refreshes the in-memory timer window the
// Ticker scans, per SPEC_FULL.md §4.B. It sleeps until the next deadline
// rather than for a fixed interval, so refresh instants don't drift.
package loader

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Rocket-Innovation/mca-timer/pkg/cache"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// DefaultInterval is the Loader's steady-state refresh cadence.
const DefaultInterval = 30 * time.Second

// Loader owns refreshing Cache from Store on a schedule, plus on-demand
// whenever an invalidation signal arrives.
type Loader struct {
	store    timerstore.Store
	cache    *cache.Cache
	window   timerstore.Window
	interval time.Duration
	isLeader func() bool
	log      logr.Logger

	refreshes prometheus.Counter
	failures  prometheus.Counter
	lastLoad  prometheus.Gauge
}

// Option customizes a Loader at construction time.
type Option func(*Loader)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(l *Loader) { l.interval = d }
}

// WithWindow overrides timerstore.DefaultWindow.
func WithWindow(w timerstore.Window) Option {
	return func(l *Loader) { l.window = w }
}

// WithLeaderCheck gates refreshes on isLeader(): when it returns false,
// Run skips the refresh instead of hitting the Store. Losing the lease
// stops the Loader, per SPEC_FULL.md §5.
func WithLeaderCheck(isLeader func() bool) Option {
	return func(l *Loader) { l.isLeader = isLeader }
}

// WithMetrics registers Prometheus collectors for refresh observability.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Loader) {
		l.refreshes = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timer_loader_refreshes_total",
			Help: "Number of successful window refreshes.",
		})
		l.failures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timer_loader_refresh_failures_total",
			Help: "Number of failed window refresh attempts.",
		})
		l.lastLoad = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timer_loader_last_load_timestamp_seconds",
			Help: "Unix timestamp of the last successful window load.",
		})
		reg.MustRegister(l.refreshes, l.failures, l.lastLoad)
	}
}

// New constructs a Loader. Call Run to start its refresh loop.
func New(store timerstore.Store, c *cache.Cache, opts ...Option) *Loader {
	l := &Loader{
		store:    store,
		cache:    c,
		window:   timerstore.DefaultWindow,
		interval: DefaultInterval,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithLogger attaches a logger; kept separate from Option so New's
// signature stays stable for callers that only need the defaults.
func (l *Loader) WithLogger(log logr.Logger) *Loader {
	l.log = log.WithName("loader")
	return l
}

// Run blocks, refreshing on each tick of interval and whenever a signal
// arrives on invalidated, until ctx is canceled. It always refreshes once
// immediately on entry.
func (l *Loader) Run(ctx context.Context, invalidated <-chan struct{}) error {
	if err := l.refresh(ctx); err != nil {
		l.log.Error(err, "initial window load failed")
	}

	next := time.Now().Add(l.interval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-invalidated:
			if err := l.refresh(ctx); err != nil {
				l.log.Error(err, "invalidation-triggered refresh failed")
			}
		case <-timer.C:
			if err := l.refresh(ctx); err != nil {
				l.log.Error(err, "scheduled refresh failed")
			}
			next = next.Add(l.interval)
			timer.Reset(time.Until(next))
		}
	}
}

func (l *Loader) refresh(ctx context.Context) error {
	if l.isLeader != nil && !l.isLeader() {
		return nil
	}
	now := time.Now()
	timers, err := l.store.LoadWindow(ctx, now, l.window)
	if err != nil {
		if l.failures != nil {
			l.failures.Inc()
		}
		return err
	}

	l.cache.Store(cache.NewWindow(timers, now))
	if l.refreshes != nil {
		l.refreshes.Inc()
	}
	if l.lastLoad != nil {
		l.lastLoad.Set(float64(now.Unix()))
	}
	l.log.V(1).Info("window refreshed", "count", len(timers))
	return nil
}
