// Package cache holds the Loader's near-term timer window in memory so
// the Ticker can scan it every second without hitting Postgres, per
// SPEC_FULL.md §4.B/§4.C.
package cache

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
)

// Window is an immutable snapshot of pending timers due within the
// Loader's lookback/lookahead range, sorted by ExecuteAt ascending.
type Window struct {
	timers    []*timer.Timer
	loadedAt  time.Time
}

// NewWindow builds a Window from an unsorted slice. The slice is copied
// before sorting, so the caller's slice keeps its order; the *timer.Timer
// values themselves are shared, not copied.
func NewWindow(timers []*timer.Timer, loadedAt time.Time) *Window {
	sorted := make([]*timer.Timer, len(timers))
	copy(sorted, timers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExecuteAt.Before(sorted[j].ExecuteAt) })
	return &Window{timers: sorted, loadedAt: loadedAt}
}

// LoadedAt reports when this snapshot was built.
func (w *Window) LoadedAt() time.Time { return w.loadedAt }

// Due returns the IDs of timers whose ExecuteAt is at or before now,
// per the Ticker's per-second claim scan.
func (w *Window) Due(now time.Time) []string {
	var ids []string
	for _, t := range w.timers {
		if t.ExecuteAt.After(now) {
			break
		}
		ids = append(ids, t.ID)
	}
	return ids
}

// Len reports the number of timers held in the snapshot.
func (w *Window) Len() int { return len(w.timers) }

// without returns a copy of the snapshot with id removed, preserving
// ExecuteAt order. Reports false if id wasn't present.
func (w *Window) without(id string) (*Window, bool) {
	idx := -1
	for i, t := range w.timers {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return w, false
	}
	timers := make([]*timer.Timer, 0, len(w.timers)-1)
	timers = append(timers, w.timers[:idx]...)
	timers = append(timers, w.timers[idx+1:]...)
	return &Window{timers: timers, loadedAt: w.loadedAt}, true
}

// Cache is a lock-free, swap-on-reload holder of the current Window. The
// Ticker reads Load() every second; the Loader calls Store() after each
// refresh. Using atomic.Pointer means readers never block on a writer
// mid-reload.
type Cache struct {
	current atomic.Pointer[Window]
}

// New returns an empty Cache. Load returns nil until the first Store.
func New() *Cache {
	return &Cache{}
}

// Load returns the current snapshot, or nil if none has been stored yet.
func (c *Cache) Load() *Window {
	return c.current.Load()
}

// Store atomically replaces the current snapshot.
func (c *Cache) Store(w *Window) {
	c.current.Store(w)
}

// Evict removes id from the current snapshot, copy-on-write, so a timer
// the Ticker just claimed isn't handed out to a second scan before the
// next Loader refresh replaces the window outright. A concurrent Store
// racing an Evict may clobber the eviction; the next refresh's WHERE
// status = 'pending' filter drops already-claimed rows regardless, and
// ClaimDue's CAS is what actually prevents double-firing.
func (c *Cache) Evict(id string) {
	for {
		w := c.current.Load()
		if w == nil {
			return
		}
		next, ok := w.without(id)
		if !ok {
			return
		}
		if c.current.CompareAndSwap(w, next) {
			return
		}
	}
}
