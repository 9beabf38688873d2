// Package api exposes the task store, intelligence engine and webhook
// pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Server is the HTTP API server.
type Server struct {
	mux          *http.ServeMux
	server       *http.Server
	logger       *slog.Logger
	tasks        *TaskHandler
	intelligence *IntelligenceHandler
	webhooks     *WebhookHandler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg ServerConfig, tasks *TaskHandler, intelligence *IntelligenceHandler, webhooks *WebhookHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		tasks:        tasks,
		intelligence: intelligence,
		webhooks:     webhooks,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      requestContextMiddleware(logger, s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Tasks
	s.mux.HandleFunc("POST /api/v1/tasks", s.tasks.Create)
	s.mux.HandleFunc("GET /api/v1/tasks", s.tasks.List)
	s.mux.HandleFunc("GET /api/v1/tasks/{id}", s.tasks.Get)
	s.mux.HandleFunc("PUT /api/v1/tasks/{id}", s.tasks.Update)
	s.mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.tasks.Delete)
	s.mux.HandleFunc("POST /api/v1/tasks/{id}/complete", s.tasks.Complete)
	s.mux.HandleFunc("GET /api/v1/tasks/{id}/priority-suggestion", s.tasks.PrioritySuggestion)

	// Activity and analytics
	s.mux.HandleFunc("GET /api/v1/activity", s.tasks.RecentActivity)
	s.mux.HandleFunc("GET /api/v1/deadlines", s.tasks.UpcomingDeadlines)
	s.mux.HandleFunc("GET /api/v1/analytics/productivity", s.tasks.ProductivityAnalytics)

	// Intelligence
	s.mux.HandleFunc("GET /api/v1/intelligence/priorities", s.intelligence.Priorities)
	s.mux.HandleFunc("GET /api/v1/intelligence/schedule", s.intelligence.DailySchedule)
	s.mux.HandleFunc("GET /api/v1/intelligence/overdue", s.intelligence.OverdueAnalysis)
	s.mux.HandleFunc("POST /api/v1/intelligence/reschedule/{id}", s.intelligence.SmartReschedule)
	s.mux.HandleFunc("POST /api/v1/tasks/{id}/analyze", s.intelligence.AnalyzeTask)
	s.mux.HandleFunc("GET /api/v1/intelligence/context", s.intelligence.FullContext)
	s.mux.HandleFunc("GET /api/v1/intelligence/patterns", s.intelligence.Patterns)
	s.mux.HandleFunc("GET /api/v1/intelligence/capacity", s.intelligence.Capacity)
	s.mux.HandleFunc("GET /api/v1/intelligence/score", s.intelligence.ProductivityScore)

	// Webhooks
	s.mux.HandleFunc("POST /webhooks/todoist", s.webhooks.Todoist)
	s.mux.HandleFunc("POST /webhooks/linear", s.webhooks.Linear)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return requestContextMiddleware(s.logger, s.mux)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
