package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
)

func mkTimer(id string, executeAt time.Time) *timer.Timer {
	return &timer.Timer{ID: id, ExecuteAt: executeAt, Status: timer.StatusPending}
}

func TestWindowSortsByExecuteAtAscending(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow([]*timer.Timer{
		mkTimer("c", base.Add(30*time.Second)),
		mkTimer("a", base.Add(10*time.Second)),
		mkTimer("b", base.Add(20*time.Second)),
	}, base)

	require.Equal(t, 3, w.Len())
	due := w.Due(base.Add(25 * time.Second))
	assert.Equal(t, []string{"a", "b"}, due)
}

func TestWindowDueIncludesExactBoundary(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow([]*timer.Timer{mkTimer("a", base)}, base)

	assert.Equal(t, []string{"a"}, w.Due(base))
}

func TestWindowDueReturnsNilWhenNothingDue(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow([]*timer.Timer{mkTimer("a", base.Add(time.Minute))}, base)

	assert.Empty(t, w.Due(base))
}

func TestCacheLoadReturnsNilBeforeFirstStore(t *testing.T) {
	c := New()
	assert.Nil(t, c.Load())
}

func TestCacheStoreReplacesSnapshotAtomically(t *testing.T) {
	c := New()
	base := time.Now()
	first := NewWindow([]*timer.Timer{mkTimer("a", base)}, base)
	c.Store(first)
	assert.Same(t, first, c.Load())

	second := NewWindow([]*timer.Timer{mkTimer("b", base)}, base.Add(time.Second))
	c.Store(second)
	assert.Same(t, second, c.Load())
}

func TestCacheEvictRemovesOnlyTheMatchingID(t *testing.T) {
	c := New()
	base := time.Now()
	c.Store(NewWindow([]*timer.Timer{mkTimer("a", base), mkTimer("b", base)}, base))

	c.Evict("a")

	w := c.Load()
	require.Equal(t, 1, w.Len())
	assert.Equal(t, []string{"b"}, w.Due(base))
}

func TestCacheEvictOnNilCacheIsNoop(t *testing.T) {
	c := New()
	assert.NotPanics(t, func() { c.Evict("missing") })
}

func TestCacheEvictOfUnknownIDIsNoop(t *testing.T) {
	c := New()
	base := time.Now()
	w := NewWindow([]*timer.Timer{mkTimer("a", base)}, base)
	c.Store(w)

	c.Evict("missing")
	assert.Same(t, w, c.Load())
}
