// Package dispatcher fires a claimed Timer's callback: an HTTP webhook
// call or a pub/sub publish, per SPEC_FULL.md §4.D. Outbound HTTP calls
// go through a per-host circuit breaker so a single unreachable webhook
// host can't stall the whole claim loop.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Rocket-Innovation/mca-timer/pkg/pubsub"
	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 30 * time.Second

// userAgent identifies outbound webhook calls to receivers.
const userAgent = "timer-platform/1.0"

// Dispatcher fires a Timer's Callback and reports the outcome.
type Dispatcher struct {
	store     timerstore.Store
	client    *http.Client
	publisher pubsub.Publisher

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

// Option customizes a Dispatcher at construction time.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

func WithPublisher(p pubsub.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// New constructs a Dispatcher. store is used to fetch the Timer's
// Callback by ID when Dispatch is invoked.
func New(store timerstore.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		client:   &http.Client{Timeout: DefaultTimeout},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch loads id's Callback and fires it, matching the Kind tag.
// This is the function the Ticker wires in as its Dispatch callback.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	t, err := d.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("dispatch: load timer %s: %w", id, err)
	}

	switch t.Callback.Kind {
	case timer.CallbackHTTP:
		return d.dispatchHTTP(ctx, t.Callback.HTTP)
	case timer.CallbackPub:
		return d.dispatchPub(t.Callback.Pub)
	default:
		return fmt.Errorf("dispatch: timer %s has unknown callback kind %q", id, t.Callback.Kind)
	}
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, cb *timer.HTTPCallback) error {
	breaker, err := d.breakerFor(cb.URL)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	_, err = breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(cb.Payload))
		if err != nil {
			return nil, fmt.Errorf("Connection error: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range cb.Headers {
			req.Header.Set(k, v)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, classifyHTTPError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, nil
	})
	return err
}

// classifyHTTPError maps a client.Do failure into spec-named categories:
// deadline exceeded becomes a timeout message, a dial/network failure
// becomes a connection-error message, anything else falls back to the
// wrapped error text.
func classifyHTTPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("Connection timeout after %s", DefaultTimeout)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return fmt.Errorf("Connection timeout after %s", DefaultTimeout)
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return fmt.Errorf("Connection error: %s", opErr.Err)
		}
		return fmt.Errorf("Connection error: %s", urlErr.Err)
	}
	return fmt.Errorf("Connection error: %w", err)
}

func (d *Dispatcher) dispatchPub(cb *timer.PubCallback) error {
	if d.publisher == nil {
		return fmt.Errorf("publish failed: no pub/sub publisher configured")
	}
	if err := d.publisher.Publish(cb.Subject(), cb.Headers, cb.Payload); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// breakerFor returns the circuit breaker scoped to cb's host, creating
// one on first use. Breaking per-host means one unreachable webhook
// target doesn't trip calls to every other target.
func (d *Dispatcher) breakerFor(rawURL string) (*gobreaker.CircuitBreaker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback url: %w", err)
	}
	host := u.Host

	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()

	if b, ok := d.breakers[host]; ok {
		return b, nil
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.breakers[host] = b
	return b, nil
}
