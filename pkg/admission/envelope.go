package admission

import (
	"encoding/json"
	"net/http"

	"github.com/Rocket-Innovation/mca-timer/internal/apperr"
)

// Envelope codes per spec.md §6: 0 success; 1 store/internal; 2
// validation; 3 not found; 4 unauthorized. These are semantic codes, not
// HTTP status codes, which the envelope carries separately via the HTTP
// status line.
const (
	codeSuccess      = 0
	codeStoreInternal = 1
	codeValidation   = 2
	codeNotFound     = 3
	codeUnauthorized = 4
)

// envelope is the wire response shape for every endpoint, per
// SPEC_FULL.md §6: {code, message, data}.
type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Code: codeSuccess, Message: "ok", Data: data})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, envelope{Code: codeUnauthorized, Message: message})
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.GetStatusCode(err)
	writeJSON(w, status, envelope{Code: envelopeCode(err), Message: apperr.SafeErrorMessage(err)})
}

func envelopeCode(err error) int {
	switch apperr.GetType(err) {
	case apperr.ErrorTypeValidation:
		return codeValidation
	case apperr.ErrorTypeNotFound:
		return codeNotFound
	case apperr.ErrorTypeAuth:
		return codeUnauthorized
	default:
		return codeStoreInternal
	}
}
