package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamscribe/streamscribe/internal/metrics"
	"github.com/streamscribe/streamscribe/internal/session"
	"github.com/streamscribe/streamscribe/internal/transcription"
)

// StartRequest is the body of POST /sessions
type StartRequest struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SessionFactory builds a ready-to-start session for a start request.
// It resolves stream metadata and wires the pipeline, but does not
// register or start the session.
type SessionFactory func(req StartRequest) (*session.Session, error)

// HTTPServer provides the HTTP API for session management and monitoring
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	registry *session.Registry
	factory  SessionFactory
	metrics  *metrics.Metrics

	// Optional transcription client statistics
	transcriptionStats func() transcription.ClientStats

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// NewHTTPServer creates the HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, registry *session.Registry,
	factory SessionFactory, m *metrics.Metrics, transcriptionStats func() transcription.ClientStats) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}

	h := &HTTPServer{
		logger:             logger,
		registry:           registry,
		factory:            factory,
		metrics:            m,
		transcriptionStats: transcriptionStats,
		startTime:          time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the configured HTTP handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session lifecycle endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleSessions implements POST /sessions (start), GET /sessions (list)
// and DELETE /sessions (stop all)
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r)
	case http.MethodGet:
		h.listSessions(w, r)
	case http.MethodDelete:
		h.stopAllSessions(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// startSession creates, registers and starts a new session. Registration
// failures or start failures leave no partial state behind.
func (h *HTTPServer) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" && req.ID == "" {
		http.Error(w, "url or id required", http.StatusBadRequest)
		return
	}

	s, err := h.factory(req)
	if err != nil {
		h.logger.Error("Failed to create session",
			slog.String("url", req.URL),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to create session", http.StatusBadGateway)
		return
	}

	if err := h.registry.Register(s); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.Start(); err != nil {
		h.registry.Unregister(s.ID)
		h.logger.Error("Failed to start session",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to start session", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.GetInfo())
}

// listSessions returns a snapshot of all active sessions
func (h *HTTPServer) listSessions(w http.ResponseWriter, _ *http.Request) {
	infos := h.registry.List()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// stopAllSessions stops every active session
func (h *HTTPServer) stopAllSessions(w http.ResponseWriter, _ *http.Request) {
	stopped := h.registry.StopAll()

	response := map[string]interface{}{
		"stopped":   stopped,
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements GET and DELETE on /sessions/{id}
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s, exists := h.registry.Get(id)
		if !exists {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.GetInfo())

	case http.MethodDelete:
		if !h.registry.Stop(id) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}

		response := map[string]interface{}{
			"stopped":   true,
			"id":        id,
			"timestamp": time.Now().UTC(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "streamscribe",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"registry": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.registry.Len(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.registry.Len(),
			"list":         h.registry.List(),
		},
	}

	if h.transcriptionStats != nil {
		stats["transcription"] = h.transcriptionStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "StreamScribe Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"POST /sessions":           "Start a new transcription session",
			"GET /sessions":            "List all active sessions",
			"DELETE /sessions":         "Stop all sessions",
			"GET /sessions/{id}":       "Get session details",
			"DELETE /sessions/{id}":    "Stop one session",
			"GET /health":              "Service health check",
			"GET /stats":               "Service statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
