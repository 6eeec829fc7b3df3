// Package engine wires together the Store, Cache, Loader, Ticker,
// Dispatcher, and optional Leader elector into the running process, per
// SPEC_FULL.md §5.
package engine

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/Rocket-Innovation/mca-timer/pkg/cache"
	"github.com/Rocket-Innovation/mca-timer/pkg/dispatcher"
	"github.com/Rocket-Innovation/mca-timer/pkg/invalidate"
	"github.com/Rocket-Innovation/mca-timer/pkg/leader"
	"github.com/Rocket-Innovation/mca-timer/pkg/loader"
	"github.com/Rocket-Innovation/mca-timer/pkg/ticker"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// ReapGrace is how long a timer may sit in executing before the boot
// reap considers it orphaned by a crashed process, per SPEC_FULL.md §5's
// resolution of Open Question #1 (reap-on-boot).
const ReapGrace = 2 * time.Minute

// Engine owns the full lifecycle of the claim-and-dispatch pipeline.
type Engine struct {
	store    timerstore.Store
	cache    *cache.Cache
	loader   *loader.Loader
	ticker   *ticker.Ticker
	elector  leader.Elector
	listener *invalidate.Listener
	log      logr.Logger
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

func WithElector(e leader.Elector) Option {
	return func(eng *Engine) { eng.elector = e }
}

func WithInvalidationListener(l *invalidate.Listener) Option {
	return func(eng *Engine) { eng.listener = l }
}

func WithLogger(log logr.Logger) Option {
	return func(eng *Engine) { eng.log = log.WithName("engine") }
}

// New constructs an Engine. When no Elector is supplied, leader.AlwaysLeader
// is used: correctness never depends on leadership, only efficiency does.
func New(store timerstore.Store, disp *dispatcher.Dispatcher, opts ...Option) *Engine {
	c := cache.New()
	eng := &Engine{
		store:   store,
		cache:   c,
		elector: leader.AlwaysLeader{},
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	eng.loader = loader.New(store, c, loader.WithLeaderCheck(eng.elector.IsLeader)).WithLogger(eng.log)
	eng.ticker = ticker.New(store, c, disp.Dispatch, ticker.WithLeaderCheck(eng.elector.IsLeader)).WithLogger(eng.log)
	return eng
}

// Run performs the boot-time reap, then blocks running the Loader,
// Ticker, optional invalidation listener, and optional leader elector
// until ctx is canceled or a component errors.
func (e *Engine) Run(ctx context.Context) error {
	reaped, err := e.store.ReapOrphaned(ctx, time.Now(), ReapGrace)
	if err != nil {
		e.log.Error(err, "boot reap failed")
	} else if reaped > 0 {
		e.log.Info("reaped orphaned timers", "count", reaped)
	}

	g, gctx := errgroup.WithContext(ctx)

	invalidated := make(chan struct{})
	if e.listener != nil {
		g.Go(func() error { return e.listener.Run(gctx) })
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case sig, ok := <-e.listener.Events():
					if !ok {
						return nil
					}
					select {
					case invalidated <- sig:
					case <-gctx.Done():
						return nil
					}
				}
			}
		})
	}

	g.Go(func() error { return e.loader.Run(gctx, invalidated) })
	g.Go(func() error { return e.ticker.Run(gctx) })
	g.Go(func() error { return e.elector.Run(gctx) })

	return g.Wait()
}
