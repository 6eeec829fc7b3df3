// Package leader provides an operational (not correctness-load-bearing)
// guard around running a single active engine instance, per
// SPEC_FULL.md §5. ClaimDue's compare-and-set remains the actual
// safety net if two instances run simultaneously; this package only
// avoids the wasted work and log noise of more than one instance
// claiming in the common case.
package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL is how long a held lease survives without renewal.
const DefaultLeaseTTL = 15 * time.Second

// DefaultRenewInterval is how often the holder refreshes its lease.
const DefaultRenewInterval = 5 * time.Second

// Elector reports whether this process currently holds the leader lease.
type Elector interface {
	IsLeader() bool
	Run(ctx context.Context) error
}

// AlwaysLeader is the fallback Elector used when no Redis lease is
// configured: every instance behaves as leader. Safe only because
// ClaimDue still serializes correctly across instances either way.
type AlwaysLeader struct{}

func (AlwaysLeader) IsLeader() bool            { return true }
func (AlwaysLeader) Run(ctx context.Context) error { <-ctx.Done(); return nil }

// RedisElector holds a SET NX PX lease, renewing it on DefaultRenewInterval
// and relinquishing it (best-effort) when Run returns.
type RedisElector struct {
	client   *redis.Client
	key      string
	holderID string
	ttl      time.Duration
	interval time.Duration
	log      logr.Logger

	leading atomic.Bool
}

// Option customizes a RedisElector at construction time.
type Option func(*RedisElector)

func WithTTL(d time.Duration) Option {
	return func(e *RedisElector) { e.ttl = d }
}

func WithRenewInterval(d time.Duration) Option {
	return func(e *RedisElector) { e.interval = d }
}

func WithLogger(log logr.Logger) Option {
	return func(e *RedisElector) { e.log = log.WithName("leader") }
}

// NewRedisElector constructs an Elector that contends for key using
// holderID as its lease value.
func NewRedisElector(client *redis.Client, key, holderID string, opts ...Option) *RedisElector {
	e := &RedisElector{
		client:   client,
		key:      key,
		holderID: holderID,
		ttl:      DefaultLeaseTTL,
		interval: DefaultRenewInterval,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsLeader reports the last-observed lease ownership state. It is safe
// to call concurrently with Run; ownership can flip between calls.
func (e *RedisElector) IsLeader() bool { return e.leading.Load() }

// Run contends for and renews the lease until ctx is canceled.
func (e *RedisElector) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.tryAcquireOrRenew(ctx)
	for {
		select {
		case <-ctx.Done():
			e.release(context.Background())
			return nil
		case <-ticker.C:
			e.tryAcquireOrRenew(ctx)
		}
	}
}

func (e *RedisElector) tryAcquireOrRenew(ctx context.Context) {
	if e.leading.Load() {
		renewed, err := e.renew(ctx)
		if err != nil {
			e.log.Error(err, "lease renewal failed")
		}
		if renewed {
			return
		}
		e.leading.Store(false)
		e.log.Info("lost leader lease")
	}

	ok, err := e.client.SetNX(ctx, e.key, e.holderID, e.ttl).Result()
	if err != nil {
		e.log.Error(err, "lease acquisition attempt failed")
		return
	}
	if ok {
		e.leading.Store(true)
		e.log.Info("acquired leader lease")
	}
}

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

func (e *RedisElector) renew(ctx context.Context) (bool, error) {
	res, err := e.client.Eval(ctx, renewScript, []string{e.key}, e.holderID, e.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	return ok && n == 1, nil
}

func (e *RedisElector) release(ctx context.Context) {
	if !e.leading.Load() {
		return
	}
	const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	if _, err := e.client.Eval(ctx, releaseScript, []string{e.key}, e.holderID).Result(); err != nil {
		e.log.Error(err, "lease release failed")
	}
	e.leading.Store(false)
}
