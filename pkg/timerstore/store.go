// Package timerstore defines the durable Store contract for Timer rows
// and its Postgres implementation, per spec.md §4.A.
package timerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
)

// ErrorKind classifies a StoreError.
type ErrorKind string

const (
	ErrNotFound      ErrorKind = "not_found"
	ErrTerminalState ErrorKind = "terminal_state"
	ErrConflict      ErrorKind = "conflict"
	ErrBackend       ErrorKind = "backend"
)

// StoreError is the single error family the Store returns, per spec.md
// §4.A ("Errors are a single StoreError variant family").
type StoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func notFound(id string) *StoreError {
	return &StoreError{Kind: ErrNotFound, Message: fmt.Sprintf("timer %s not found", id)}
}

func terminalState(id string, status timer.Status) *StoreError {
	return &StoreError{Kind: ErrTerminalState, Message: fmt.Sprintf("timer %s is in terminal state %s", id, status)}
}

func backendErr(op string, cause error) *StoreError {
	return &StoreError{Kind: ErrBackend, Message: fmt.Sprintf("store operation failed: %s", op), Cause: cause}
}

// SortField and SortOrder constrain List's pagination parameters, per
// spec.md §4.A.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortExecuteAt SortField = "execute_at"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListParams carries List's pagination and filter inputs. Limit/Offset are
// clamped by ClampListParams before use; callers should call it.
type ListParams struct {
	StatusFilter *timer.Status
	Sort         SortField
	Order        SortOrder
	Limit        int
	Offset       int
}

const (
	minListLimit     = 1
	maxListLimit     = 200
	defaultListLimit = 50
)

// ClampListParams normalizes Limit/Offset per spec.md §4.A and §8 boundary
// behaviors ("limit = 0 or negative -> clamped to 1; limit > 200 clamped
// to 200").
func ClampListParams(p ListParams) ListParams {
	out := p
	if out.Sort == "" {
		out.Sort = SortCreatedAt
	}
	if out.Order == "" {
		out.Order = OrderDesc
	}
	switch {
	case out.Limit <= 0:
		out.Limit = minListLimit
	case out.Limit > maxListLimit:
		out.Limit = maxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// Update carries the optional subset of fields an admission PUT may
// change, per spec.md §4.A.
type Update struct {
	ExecuteAt *time.Time
	Callback  *timer.Callback
	Metadata  json.RawMessage
}

// Window bounds LoadWindow's query, per spec.md §4.B defaults.
type Window struct {
	Lookback time.Duration
	Lookahead time.Duration
}

// DefaultWindow is the Loader's default window per spec.md §4.B.
var DefaultWindow = Window{Lookback: 5 * time.Minute, Lookahead: 1 * time.Minute}

// Store is the durable timer record contract. Implementations must make
// ClaimDue an atomic compare-and-set: it is the single point of
// serialization preventing double-firing (spec.md §4.A).
type Store interface {
	Create(ctx context.Context, executeAt time.Time, cb timer.Callback, metadata json.RawMessage) (*timer.Timer, error)
	Get(ctx context.Context, id string) (*timer.Timer, error)
	List(ctx context.Context, params ListParams) ([]*timer.Timer, int, error)
	Update(ctx context.Context, id string, upd Update) (*timer.Timer, error)
	Cancel(ctx context.Context, id string) (*timer.Timer, error)
	ClaimDue(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	LoadWindow(ctx context.Context, now time.Time, w Window) ([]*timer.Timer, error)
	ReapOrphaned(ctx context.Context, now time.Time, grace time.Duration) (int, error)
}
