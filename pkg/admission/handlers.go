package admission

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Rocket-Innovation/mca-timer/internal/apperr"
	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// validateCallback enforces spec.md §6's callback validation rules: an
// HTTP callback's url must begin with http:// or https://; a pub/sub
// callback is only acceptable when pub/sub is configured, and its topic
// must be non-empty after trimming.
func (s *Server) validateCallback(cb callbackDTO) error {
	switch cb.Type {
	case "http":
		if !strings.HasPrefix(cb.URL, "http://") && !strings.HasPrefix(cb.URL, "https://") {
			return apperr.NewValidationError("callback url must begin with http:// or https://")
		}
	case "pub":
		if !s.pubSubEnabled {
			return apperr.NewValidationError("pub/sub callbacks are not accepted: no pub/sub backend is configured")
		}
		if strings.TrimSpace(cb.Topic) == "" {
			return apperr.NewValidationError("callback topic must be non-empty")
		}
	}
	return nil
}

// mapStoreError translates the Store's StoreError family into the
// AppError family the response envelope understands.
func mapStoreError(err error) error {
	var storeErr *timerstore.StoreError
	if !errors.As(err, &storeErr) {
		return apperr.Wrap(err, apperr.ErrorTypeInternal, "unexpected error")
	}
	switch storeErr.Kind {
	case timerstore.ErrNotFound:
		return apperr.NewNotFoundError("timer")
	case timerstore.ErrTerminalState:
		// spec.md §6 treats update/cancel-on-terminal as an admission
		// validation rule (400, code=2), not a conflict status.
		return apperr.NewValidationError(storeErr.Message)
	case timerstore.ErrConflict:
		return apperr.NewDatabaseError(storeErr.Message, storeErr.Cause)
	default:
		return apperr.NewDatabaseError(storeErr.Message, storeErr.Cause)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// tooSoon reports whether executeAt fails the "strictly more than 5
// seconds in the future" rule: exactly now+5s is rejected, per spec.md
// §8's boundary behaviors.
func tooSoon(executeAt time.Time) bool {
	return !executeAt.After(time.Now().Add(timer.MinLead))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTimerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.NewValidationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apperr.NewValidationError(err.Error()))
		return
	}
	if tooSoon(req.ExecuteAt) {
		writeError(w, apperr.NewValidationError("execute_at must be more than 5 seconds in the future"))
		return
	}
	if err := s.validateCallback(req.Callback); err != nil {
		writeError(w, err)
		return
	}

	t, err := s.store.Create(r.Context(), req.ExecuteAt, req.Callback.toDomain(), req.Metadata)
	if err != nil {
		writeError(w, mapStoreError(err))
		return
	}
	writeOK(w, http.StatusCreated, timerResponseFromDomain(t))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, apperr.NewValidationError("id must be a valid UUID"))
		return
	}

	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, mapStoreError(err))
		return
	}
	writeOK(w, http.StatusOK, timerResponseFromDomain(t))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		writeError(w, apperr.NewValidationError(err.Error()))
		return
	}

	timers, total, err := s.store.List(r.Context(), params)
	if err != nil {
		writeError(w, mapStoreError(err))
		return
	}

	out := make([]timerResponse, 0, len(timers))
	for _, t := range timers {
		out = append(out, timerResponseFromDomain(t))
	}
	writeOK(w, http.StatusOK, listTimersResponse{Timers: out, Total: total, Limit: params.Limit, Offset: params.Offset})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, apperr.NewValidationError("id must be a valid UUID"))
		return
	}

	var req updateTimerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.NewValidationError("malformed request body"))
		return
	}
	if req.ExecuteAt != nil && tooSoon(*req.ExecuteAt) {
		writeError(w, apperr.NewValidationError("execute_at must be more than 5 seconds in the future"))
		return
	}

	upd := timerstore.Update{ExecuteAt: req.ExecuteAt, Metadata: req.Metadata}
	if req.Callback != nil {
		if err := s.validateCallback(*req.Callback); err != nil {
			writeError(w, err)
			return
		}
		cb := req.Callback.toDomain()
		upd.Callback = &cb
	}

	t, err := s.store.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, mapStoreError(err))
		return
	}
	writeOK(w, http.StatusOK, timerResponseFromDomain(t))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, apperr.NewValidationError("id must be a valid UUID"))
		return
	}

	t, err := s.store.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, mapStoreError(err))
		return
	}
	writeOK(w, http.StatusOK, cancelResponse{ID: t.ID, Status: string(t.Status)})
}
