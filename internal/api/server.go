// Package api provides HTTP REST API handlers for the pilot agent.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/events"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
	"github.com/hugo-lorenzo-mato/pilot/internal/service"
)

// Server exposes session, goal, override and memory endpoints over HTTP.
type Server struct {
	router    chi.Router
	sessions  *service.SessionManager
	store     core.GoalStore
	overrides *service.OverrideRegistry
	eventBus  *events.EventBus
	logger    *logging.Logger
	cors      []string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGoalStore enables the goal query endpoints.
func WithGoalStore(store core.GoalStore) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithOverrideRegistry enables the override endpoints.
func WithOverrideRegistry(reg *service.OverrideRegistry) ServerOption {
	return func(s *Server) {
		s.overrides = reg
	}
}

// WithEventBus enables the SSE event stream.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.cors = origins
	}
}

// NewServer creates a new API server around a session manager.
func NewServer(sessions *service.SessionManager, opts ...ServerOption) *Server {
	s := &Server{
		sessions: sessions,
		logger:   logging.NewNop(),
		cors:     []string{"*"},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cors,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleClearSession)
			})
		})

		r.Get("/agent/status", s.handleAgentStatus)

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", s.handleListGoals)
			r.Get("/{goalID}", s.handleGetGoal)
			r.Put("/{goalID}/priority", s.handleSetGoalPriority)
		})

		r.Route("/overrides", func(r chi.Router) {
			r.Get("/", s.handleListOverrides)
			r.Post("/", s.handleCreateOverride)
			r.Route("/{overrideID}", func(r chi.Router) {
				r.Get("/", s.handleGetOverride)
				r.Post("/apply", s.handleApplyOverride)
				r.Delete("/", s.handleRevokeOverride)
			})
		})

		r.Route("/memory", func(r chi.Router) {
			r.Get("/events", s.handleQueryEvents)
			r.Post("/export", s.handleMemoryExport)
			r.Post("/import", s.handleMemoryImport)
		})

		// SSE endpoint for real-time updates
		r.Get("/events", s.handleSSE)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeJSON parses a request body, limiting size to keep the endpoints
// from buffering arbitrary payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ListenAndServe starts the HTTP server with graceful shutdown on ctx
// cancellation.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}
