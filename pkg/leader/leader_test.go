package leader

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAlwaysLeaderIsAlwaysLeader(t *testing.T) {
	e := AlwaysLeader{}
	require.True(t, e.IsLeader())
}

func TestRedisElectorAcquiresLeaseWhenUncontended(t *testing.T) {
	client := newTestClient(t)
	e := NewRedisElector(client, "timer-engine-leader", "instance-a", WithRenewInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	require.Eventually(t, func() bool { return e.IsLeader() }, time.Second, time.Millisecond)
}

func TestRedisElectorSecondInstanceDoesNotAcquireWhileFirstHolds(t *testing.T) {
	client := newTestClient(t)
	a := NewRedisElector(client, "timer-engine-leader", "instance-a", WithRenewInterval(10*time.Millisecond))
	b := NewRedisElector(client, "timer-engine-leader", "instance-b", WithRenewInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)

	require.Eventually(t, func() bool { return a.IsLeader() }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.False(t, b.IsLeader())
}

func TestRedisElectorReleasesLeaseOnShutdown(t *testing.T) {
	client := newTestClient(t)
	a := NewRedisElector(client, "timer-engine-leader", "instance-a", WithRenewInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	require.Eventually(t, func() bool { return a.IsLeader() }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	val, err := client.Get(context.Background(), "timer-engine-leader").Result()
	require.Error(t, err)
	require.Empty(t, val)
}
