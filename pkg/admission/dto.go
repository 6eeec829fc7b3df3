package admission

import (
	"encoding/json"
	"time"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
)

// callbackDTO mirrors timer.Callback on the wire but uses validator tags
// to enforce the tagged-union shape at the admission boundary, before
// anything reaches the store.
type callbackDTO struct {
	Type    string            `json:"type" validate:"required,oneof=http pub"`
	URL     string            `json:"url,omitempty" validate:"required_if=Type http"`
	Topic   string            `json:"topic,omitempty" validate:"required_if=Type pub"`
	Key     string            `json:"key,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

func (c callbackDTO) toDomain() timer.Callback {
	switch c.Type {
	case "http":
		return timer.Callback{Kind: timer.CallbackHTTP, HTTP: &timer.HTTPCallback{
			URL: c.URL, Headers: c.Headers, Payload: c.Payload,
		}}
	default:
		return timer.Callback{Kind: timer.CallbackPub, Pub: &timer.PubCallback{
			Topic: c.Topic, Key: c.Key, Headers: c.Headers, Payload: c.Payload,
		}}
	}
}

func callbackFromDomain(cb timer.Callback) callbackDTO {
	switch cb.Kind {
	case timer.CallbackHTTP:
		return callbackDTO{Type: "http", URL: cb.HTTP.URL, Headers: cb.HTTP.Headers, Payload: cb.HTTP.Payload}
	default:
		return callbackDTO{Type: "pub", Topic: cb.Pub.Topic, Key: cb.Pub.Key, Headers: cb.Pub.Headers, Payload: cb.Pub.Payload}
	}
}

// createTimerRequest is the POST /timers request body.
type createTimerRequest struct {
	ExecuteAt time.Time       `json:"execute_at" validate:"required"`
	Callback  callbackDTO     `json:"callback" validate:"required"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// updateTimerRequest is the PUT /timers/{id} request body. All fields are
// optional; only non-nil/non-zero fields are applied.
type updateTimerRequest struct {
	ExecuteAt *time.Time      `json:"execute_at,omitempty"`
	Callback  *callbackDTO    `json:"callback,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// timerResponse is the wire representation of a timer.Timer.
type timerResponse struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ExecuteAt  time.Time       `json:"execute_at"`
	Callback   callbackDTO     `json:"callback"`
	Status     string          `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

func timerResponseFromDomain(t *timer.Timer) timerResponse {
	return timerResponse{
		ID:         t.ID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ExecuteAt:  t.ExecuteAt,
		Callback:   callbackFromDomain(t.Callback),
		Status:     string(t.Status),
		LastError:  t.LastError,
		ExecutedAt: t.ExecutedAt,
		Metadata:   t.Metadata,
	}
}

// listTimersResponse is the GET /timers response body, per spec.md §6.
type listTimersResponse struct {
	Timers []timerResponse `json:"timers"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// cancelResponse is the DELETE /timers/{id} response body, per spec.md §6.
type cancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
