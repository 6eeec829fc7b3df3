package ticker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rocket-Innovation/mca-timer/pkg/cache"
	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

type fakeStore struct {
	timerstore.Store
	mu        sync.Mutex
	claimed   map[string]bool
	completed []string
	failed    []string
	claimAllow func(id string) bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{claimed: map[string]bool{}}
}

func (f *fakeStore) ClaimDue(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimAllow != nil && !f.claimAllow(id) {
		return false, nil
	}
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id string, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func TestScanClaimsAndDispatchesDueTimers(t *testing.T) {
	fs := newFakeStore()
	c := cache.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.Store(cache.NewWindow([]*timer.Timer{
		{ID: "a", ExecuteAt: now},
		{ID: "b", ExecuteAt: now.Add(time.Hour)},
	}, now))

	dispatched := map[string]bool{}
	var mu sync.Mutex
	tk := New(fs, c, func(ctx context.Context, id string) error {
		mu.Lock()
		dispatched[id] = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, tk.scan(context.Background(), now))

	assert.True(t, dispatched["a"])
	assert.False(t, dispatched["b"])
	assert.Contains(t, fs.completed, "a")
}

func TestScanMarksFailedWhenDispatchErrors(t *testing.T) {
	fs := newFakeStore()
	c := cache.New()
	now := time.Now()
	c.Store(cache.NewWindow([]*timer.Timer{{ID: "a", ExecuteAt: now}}, now))

	tk := New(fs, c, func(ctx context.Context, id string) error {
		return errors.New("webhook unreachable")
	})

	require.NoError(t, tk.scan(context.Background(), now))
	assert.Contains(t, fs.failed, "a")
	assert.Empty(t, fs.completed)
}

func TestScanSkipsWhenNoWindowLoadedYet(t *testing.T) {
	fs := newFakeStore()
	c := cache.New()
	tk := New(fs, c, func(ctx context.Context, id string) error { return nil })

	assert.NoError(t, tk.scan(context.Background(), time.Now()))
}

func TestScanEvictsClaimedTimerFromCache(t *testing.T) {
	fs := newFakeStore()
	c := cache.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.Store(cache.NewWindow([]*timer.Timer{
		{ID: "a", ExecuteAt: now},
		{ID: "b", ExecuteAt: now.Add(time.Hour)},
	}, now))

	tk := New(fs, c, func(ctx context.Context, id string) error { return nil })
	require.NoError(t, tk.scan(context.Background(), now))

	w := c.Load()
	require.NotNil(t, w)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, []string{"b"}, w.Due(now.Add(2*time.Hour)))
}

func TestScanSkipsEntirelyWhenNotLeader(t *testing.T) {
	fs := newFakeStore()
	c := cache.New()
	now := time.Now()
	c.Store(cache.NewWindow([]*timer.Timer{{ID: "a", ExecuteAt: now}}, now))

	called := false
	tk := New(fs, c, func(ctx context.Context, id string) error {
		called = true
		return nil
	}, WithLeaderCheck(func() bool { return false }))

	require.NoError(t, tk.scan(context.Background(), now))
	assert.False(t, called)
	assert.Empty(t, fs.claimed)
}

func TestScanDoesNotDispatchWhenClaimLost(t *testing.T) {
	fs := newFakeStore()
	fs.claimAllow = func(id string) bool { return false }
	c := cache.New()
	now := time.Now()
	c.Store(cache.NewWindow([]*timer.Timer{{ID: "a", ExecuteAt: now}}, now))

	called := false
	tk := New(fs, c, func(ctx context.Context, id string) error {
		called = true
		return nil
	})

	require.NoError(t, tk.scan(context.Background(), now))
	assert.False(t, called)
}
