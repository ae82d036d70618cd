package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
)

// Config holds HTTP server configuration.
type Config struct {
	Bind             string
	ProgressInterval time.Duration // SSE poll cadence (default 250ms)
	RateLimit        RateLimitConfig
	DocsDisabled     bool
}

// Server is the HTTP server for Shuttle.
type Server struct {
	engine     *engine.Engine
	members    membership.Store
	cfg        Config
	httpServer *http.Server
	router     chi.Router
	limiter    *rateLimiter
	requests   *requestMetrics
}

// New creates a new Server.
func New(eng *engine.Engine, members membership.Store, cfg Config) *Server {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 250 * time.Millisecond
	}
	srv := &Server{
		engine:   eng,
		members:  members,
		cfg:      cfg,
		limiter:  newRateLimiter(cfg.RateLimit),
		requests: newRequestMetrics(eng.Metrics().Registry),
	}
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.requests.middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		// Operations
		r.Post("/collections/{source_id}/to/{target_id}/companies/batch", s.handleBulkAdd)
		r.Get("/operations", s.handleListOperations)
		r.Get("/operations/{task_id}/status", s.handleOperationStatus)
		r.Get("/operations/{task_id}/progress", s.handleOperationProgress)
		r.Post("/operations/{task_id}/cancel", s.handleCancelOperation)
		r.Post("/operations/{task_id}/undo", s.handleUndoOperation)

		// Collections
		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Get("/collections/{collection_id}", s.handleGetCollection)
		r.Delete("/collections/{collection_id}", s.handleDeleteCollection)
		r.Post("/collections/{collection_id}/companies", s.handleAddCompanies)
		r.Post("/collections/{collection_id}/companies/delete", s.handleDeleteCompanies)
	})

	if !s.cfg.DocsDisabled {
		s.mountDocs(r)
	}
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.engine.Metrics().Registry, promhttp.HandlerOpts{}))

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	s.limiter.close()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
