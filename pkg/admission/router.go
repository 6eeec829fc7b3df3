// Package admission implements the HTTP API for creating, inspecting,
// updating, and canceling timers, per SPEC_FULL.md §6.
package admission

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	"github.com/Rocket-Innovation/mca-timer/pkg/metrics"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// Pinger is implemented by Store backends that can probe their
// connection for the /healthz check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the chi router against a Store.
type Server struct {
	store         timerstore.Store
	log           logr.Logger
	metrics       *metrics.Metrics
	apiKey        string
	pubSubEnabled bool
	validate      *validator.Validate
	router        chi.Router
}

// Option customizes a Server at construction time.
type Option func(*Server)

func WithLogger(log logr.Logger) Option {
	return func(s *Server) { s.log = log.WithName("admission") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPubSubEnabled marks pub/sub-kind callbacks as acceptable at
// creation time; set this when a pub/sub backend is actually wired.
func WithPubSubEnabled(enabled bool) Option {
	return func(s *Server) { s.pubSubEnabled = enabled }
}

// New builds a Server. apiKey, if non-empty, is required via the
// X-API-Key header on every /timers route, reads included (spec.md §6's
// authentication requirement); /healthz is always unauthenticated.
func New(store timerstore.Store, apiKey string, opts ...Option) *Server {
	s := &Server{
		store:    store,
		log:      logr.Discard(),
		apiKey:   apiKey,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"X-API-Key", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/timers", func(r chi.Router) {
		r.Use(s.authenticate)
		if s.metrics != nil {
			r.Use(s.metrics.Middleware("/timers"))
		}
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Delete("/", s.handleCancel)
		})
	})

	return r
}

type healthzResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	database := "unchecked"
	if pinger, ok := s.store.(Pinger); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, envelope{
				Code:    codeStoreInternal,
				Message: "database probe failed",
				Data:    healthzResponse{Status: "down", Database: "down", Timestamp: time.Now()},
			})
			return
		}
		database = "ok"
	}
	writeOK(w, http.StatusOK, healthzResponse{Status: "ok", Database: database, Timestamp: time.Now()})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeUnauthorized(w, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
