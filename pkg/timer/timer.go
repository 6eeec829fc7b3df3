// Package timer defines the durable deferred-callback domain model shared
// by the store, the engine components, and the admission API.
package timer

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is a Timer's lifecycle state. Terminal states (Completed, Failed,
// Canceled) are sticky: the store never transitions out of them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsTerminal reports whether s is one of the sticky terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// CallbackKind discriminates the two callback shapes a Timer can carry.
type CallbackKind string

const (
	CallbackHTTP CallbackKind = "http"
	CallbackPub  CallbackKind = "pub"
)

// HTTPCallback describes a webhook dispatch target.
type HTTPCallback struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// PubCallback describes a pub/sub publish target.
type PubCallback struct {
	Topic   string            `json:"topic"`
	Key     string            `json:"key,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Subject returns the publish subject: "topic" if Key is empty, else
// "topic.key", per spec.md §4.D.
func (p PubCallback) Subject() string {
	if p.Key == "" {
		return p.Topic
	}
	return fmt.Sprintf("%s.%s", p.Topic, p.Key)
}

// Callback is a tagged union of HTTPCallback and PubCallback. Exactly one
// of HTTP or Pub is set, matching Kind. Modeled as a tagged variant rather
// than an interface hierarchy per spec.md §9 ("Do not model this via
// inheritance"), so the Dispatcher can pattern-match once at job start.
type Callback struct {
	Kind CallbackKind
	HTTP *HTTPCallback
	Pub  *PubCallback
}

type callbackWire struct {
	Type    CallbackKind      `json:"type"`
	URL     string            `json:"url,omitempty"`
	Topic   string            `json:"topic,omitempty"`
	Key     string            `json:"key,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

func (c Callback) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CallbackHTTP:
		if c.HTTP == nil {
			return nil, fmt.Errorf("callback: kind=http but HTTP is nil")
		}
		return json.Marshal(callbackWire{
			Type:    CallbackHTTP,
			URL:     c.HTTP.URL,
			Headers: c.HTTP.Headers,
			Payload: c.HTTP.Payload,
		})
	case CallbackPub:
		if c.Pub == nil {
			return nil, fmt.Errorf("callback: kind=pub but Pub is nil")
		}
		return json.Marshal(callbackWire{
			Type:    CallbackPub,
			Topic:   c.Pub.Topic,
			Key:     c.Pub.Key,
			Headers: c.Pub.Headers,
			Payload: c.Pub.Payload,
		})
	default:
		return nil, fmt.Errorf("callback: unknown kind %q", c.Kind)
	}
}

func (c *Callback) UnmarshalJSON(data []byte) error {
	var wire callbackWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case CallbackHTTP:
		c.Kind = CallbackHTTP
		c.HTTP = &HTTPCallback{URL: wire.URL, Headers: wire.Headers, Payload: wire.Payload}
		c.Pub = nil
	case CallbackPub:
		c.Kind = CallbackPub
		c.Pub = &PubCallback{Topic: wire.Topic, Key: wire.Key, Headers: wire.Headers, Payload: wire.Payload}
		c.HTTP = nil
	default:
		return fmt.Errorf("callback: unknown kind %q", wire.Type)
	}
	return nil
}

// Timer is the single primary entity: a durable record requesting one
// future callback, per spec.md §3.
type Timer struct {
	ID         string          `json:"id" db:"id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	ExecuteAt  time.Time       `json:"execute_at" db:"execute_at"`
	Callback   Callback        `json:"callback" db:"-"`
	Status     Status          `json:"status" db:"status"`
	LastError  string          `json:"last_error,omitempty" db:"last_error"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// MinLead is the minimum gap spec.md §3 requires between a reference
// instant (creation or update time) and ExecuteAt.
const MinLead = 5 * time.Second
