// Package invalidate listens for Postgres NOTIFY events on the timers
// channel and signals the Loader to refresh its window early, per
// SPEC_FULL.md §4.A.1. This supplements the Loader's periodic poll; it
// never replaces ClaimDue as the correctness boundary.
package invalidate

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
)

// Channel is the Postgres NOTIFY channel timers writes publish to.
const Channel = "timers_changed"

// Listener holds a dedicated pgx connection subscribed to Channel. It is
// deliberately separate from the sqlx/lib-pq pool used for regular
// queries: LISTEN/NOTIFY requires a long-lived session-bound connection
// that a pooled driver cannot provide.
type Listener struct {
	conn   *pgx.Conn
	log    logr.Logger
	events chan struct{}
}

// Connect opens a dedicated pgx connection and issues LISTEN on Channel.
func Connect(ctx context.Context, connString string, log logr.Logger) (*Listener, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return &Listener{
		conn:   conn,
		log:    log.WithName("invalidate"),
		events: make(chan struct{}, 1),
	}, nil
}

// Events returns a channel that receives a signal (non-blocking, coalesced)
// each time a notification arrives. The Loader selects on this alongside
// its own ticker.
func (l *Listener) Events() <-chan struct{} {
	return l.events
}

// Run blocks waiting for notifications until ctx is canceled, pushing a
// coalesced signal onto Events() for each one received.
func (l *Listener) Run(ctx context.Context) error {
	for {
		notification, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Error(err, "wait for notification failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
				continue
			}
		}
		l.log.V(1).Info("received invalidation notification", "channel", notification.Channel, "payload", notification.Payload)
		select {
		case l.events <- struct{}{}:
		default:
		}
	}
}

// Close releases the dedicated connection.
func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
