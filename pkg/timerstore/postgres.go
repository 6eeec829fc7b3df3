package timerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
)

// PostgresStore is the Store implementation backed by the timers table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-connected *sqlx.DB.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping probes the connection pool, satisfying the admission package's
// Pinger interface for the /healthz database check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type timerRow struct {
	ID         string          `db:"id"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
	ExecuteAt  time.Time       `db:"execute_at"`
	Callback   []byte          `db:"callback"`
	Status     string          `db:"status"`
	LastError  sql.NullString  `db:"last_error"`
	ExecutedAt sql.NullTime    `db:"executed_at"`
	Metadata   json.RawMessage `db:"metadata"`
}

func (r timerRow) toDomain() (*timer.Timer, error) {
	var cb timer.Callback
	if err := json.Unmarshal(r.Callback, &cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	t := &timer.Timer{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExecuteAt: r.ExecuteAt,
		Callback:  cb,
		Status:    timer.Status(r.Status),
		Metadata:  r.Metadata,
	}
	if r.LastError.Valid {
		t.LastError = r.LastError.String
	}
	if r.ExecutedAt.Valid {
		executedAt := r.ExecutedAt.Time
		t.ExecutedAt = &executedAt
	}
	return t, nil
}

const selectColumns = `id, created_at, updated_at, execute_at, callback, status, last_error, executed_at, metadata`

func (s *PostgresStore) Create(ctx context.Context, executeAt time.Time, cb timer.Callback, metadata json.RawMessage) (*timer.Timer, error) {
	cbJSON, err := json.Marshal(cb)
	if err != nil {
		return nil, backendErr("create: marshal callback", err)
	}
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}

	query := fmt.Sprintf(`
		INSERT INTO timers (execute_at, callback, status, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, selectColumns)

	var row timerRow
	if err := s.db.GetContext(ctx, &row, query, executeAt.UTC(), cbJSON, timer.StatusPending, metadata); err != nil {
		return nil, backendErr("create", err)
	}
	return row.toDomain()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*timer.Timer, error) {
	query := fmt.Sprintf(`SELECT %s FROM timers WHERE id = $1`, selectColumns)

	var row timerRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, backendErr("get", err)
	}
	return row.toDomain()
}

func (s *PostgresStore) List(ctx context.Context, params ListParams) ([]*timer.Timer, int, error) {
	params = ClampListParams(params)

	var (
		whereClause string
		args        []interface{}
	)
	if params.StatusFilter != nil {
		whereClause = "WHERE status = $1"
		args = append(args, string(*params.StatusFilter))
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM timers %s`, whereClause)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, backendErr("list: count", err)
	}

	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	query := fmt.Sprintf(`SELECT %s FROM timers %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		selectColumns, whereClause, params.Sort, params.Order, limitPos, offsetPos)
	args = append(args, params.Limit, params.Offset)

	var rows []timerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, backendErr("list", err)
	}

	out := make([]*timer.Timer, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, 0, backendErr("list: decode", err)
		}
		out = append(out, t)
	}
	return out, total, nil
}

// Update changes the mutable subset of a timer in pending or executing
// status. Terminal timers (completed, failed, canceled) reject updates
// with ErrTerminalState, per spec.md §4.A.
func (s *PostgresStore) Update(ctx context.Context, id string, upd Update) (*timer.Timer, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		return nil, terminalState(id, existing.Status)
	}

	executeAt := existing.ExecuteAt
	if upd.ExecuteAt != nil {
		executeAt = *upd.ExecuteAt
	}
	cb := existing.Callback
	if upd.Callback != nil {
		cb = *upd.Callback
	}
	metadata := existing.Metadata
	if upd.Metadata != nil {
		metadata = upd.Metadata
	}

	cbJSON, err := json.Marshal(cb)
	if err != nil {
		return nil, backendErr("update: marshal callback", err)
	}

	query := fmt.Sprintf(`
		UPDATE timers
		SET execute_at = $1, callback = $2, metadata = $3, updated_at = now()
		WHERE id = $4 AND status IN ('pending', 'executing')
		RETURNING %s`, selectColumns)

	var row timerRow
	if err := s.db.GetContext(ctx, &row, query, executeAt.UTC(), cbJSON, metadata, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &StoreError{Kind: ErrConflict, Message: fmt.Sprintf("timer %s changed status concurrently", id)}
		}
		return nil, backendErr("update", err)
	}
	return row.toDomain()
}

// Cancel moves a pending or executing timer to canceled. Already-terminal
// timers (completed, failed, canceled) are reported as ErrTerminalState
// rather than silently re-affirmed, per spec.md §6's cancel validation
// rules.
func (s *PostgresStore) Cancel(ctx context.Context, id string) (*timer.Timer, error) {
	query := fmt.Sprintf(`
		UPDATE timers
		SET status = 'canceled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'executing')
		RETURNING %s`, selectColumns)

	var row timerRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, getErr := s.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, terminalState(id, existing.Status)
		}
		return nil, backendErr("cancel", err)
	}
	return row.toDomain()
}

// ClaimDue is the single serialization point preventing double-firing: a
// compare-and-set from pending to executing, per spec.md §4.A/§9.
func (s *PostgresStore) ClaimDue(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE timers
		SET status = 'executing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id`

	var claimedID string
	err := s.db.GetContext(ctx, &claimedID, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, backendErr("claim_due", err)
	}
	return true, nil
}

// MarkCompleted finalizes a successfully dispatched timer. Zero rows
// affected means the timer already reached a terminal state (e.g. a
// concurrent reap), which is treated as success per spec.md §5
// ("idempotent terminal writes").
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string) error {
	const query = `
		UPDATE timers
		SET status = 'completed', executed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'executing'`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return backendErr("mark_completed", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const query = `
		UPDATE timers
		SET status = 'failed', last_error = $2, executed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'executing'`

	if _, err := s.db.ExecContext(ctx, query, id, errMsg); err != nil {
		return backendErr("mark_failed", err)
	}
	return nil
}

func (s *PostgresStore) LoadWindow(ctx context.Context, now time.Time, w Window) ([]*timer.Timer, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM timers
		WHERE status = 'pending' AND execute_at BETWEEN $1 AND $2
		ORDER BY execute_at ASC`, selectColumns)

	from := now.Add(-w.Lookback)
	to := now.Add(w.Lookahead)

	var rows []timerRow
	if err := s.db.SelectContext(ctx, &rows, query, from.UTC(), to.UTC()); err != nil {
		return nil, backendErr("load_window", err)
	}

	out := make([]*timer.Timer, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, backendErr("load_window: decode", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ReapOrphaned fails timers left stuck in executing across a crash,
// implementing the reap-on-boot policy decided in SPEC_FULL.md §5 (Open
// Question #1): a timer whose dispatch may or may not have actually
// fired before the crash is marked failed with a diagnostic last_error
// rather than re-claimed, so it can never double-fire.
func (s *PostgresStore) ReapOrphaned(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	const query = `
		UPDATE timers
		SET status = 'failed', last_error = 'engine restart', executed_at = now(), updated_at = now()
		WHERE status = 'executing' AND execute_at < $1`

	cutoff := now.Add(-grace).UTC()
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, backendErr("reap_orphaned", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, backendErr("reap_orphaned: rows_affected", err)
	}
	return int(n), nil
}
