// Package apiserver exposes the diagnosis engine over HTTP: session
// lifecycle and inspection routes, a WebSocket event stream per
// session, Prometheus metrics, and an MCP endpoint mirroring the tool
// registry.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/memory"
	"github.com/moolen/causeway/internal/session"
	"github.com/moolen/causeway/internal/tools"
)

// ReadinessChecker reports whether the engine can accept sessions.
type ReadinessChecker interface {
	IsReady() bool
}

// NoOpReadinessChecker always reports ready.
type NoOpReadinessChecker struct{}

func (n *NoOpReadinessChecker) IsReady() bool { return true }

// Server is the HTTP transport. It implements lifecycle.Component.
type Server struct {
	port     int
	server   *http.Server
	router   *http.ServeMux
	sessions *session.Manager
	memory   *memory.Store
	registry *tools.Executor
	ready    ReadinessChecker
	validate *validator.Validate
	logger   *logging.Logger
}

// New creates the API server. The memory store and tool registry may
// be nil; fingerprint persistence and the MCP endpoint are then
// skipped.
func New(port int, sessions *session.Manager, mem *memory.Store, registry *tools.Executor, ready ReadinessChecker) *Server {
	if ready == nil {
		ready = &NoOpReadinessChecker{}
	}
	s := &Server{
		port:     port,
		router:   http.NewServeMux(),
		sessions: sessions,
		memory:   mem,
		registry: registry,
		ready:    ready,
		validate: validator.New(),
		logger:   logging.GetLogger("api"),
	}
	s.registerHandlers()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// corsMiddleware allows browser access during local development.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start implements lifecycle.Component and begins listening.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()
	s.logger.Info("API server listening on port %d", s.port)
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("HTTP server shutdown error: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Warn("API server shutdown timeout")
		return ctx.Err()
	}
}

// Name implements lifecycle.Component.
func (s *Server) Name() string { return "api-server" }

// Handler exposes the router for httptest-backed tests.
func (s *Server) Handler() http.Handler { return s.corsMiddleware(s.router) }

func (s *Server) registerHandlers() {
	s.router.HandleFunc("POST /session/start", s.handleSessionStart)
	s.router.HandleFunc("GET /session/{id}/status", s.withSession(s.handleStatus))
	s.router.HandleFunc("GET /session/{id}/findings", s.withSession(s.handleFindings))
	s.router.HandleFunc("GET /session/{id}/events", s.withSession(s.handleEvents))
	s.router.HandleFunc("POST /session/{id}/investigate", s.withSession(s.handleInvestigate))
	s.router.HandleFunc("GET /session/{id}/tools", s.withSession(s.handleTools))
	s.router.HandleFunc("GET /session/{id}/evidence-graph", s.withSession(s.handleEvidenceGraph))
	s.router.HandleFunc("GET /session/{id}/confidence", s.withSession(s.handleConfidence))
	s.router.HandleFunc("GET /session/{id}/reasoning", s.withSession(s.handleReasoning))
	s.router.HandleFunc("POST /session/{id}/attestation", s.withSession(s.handleAttestation))
	s.router.HandleFunc("GET /session/{id}/timeline", s.withSession(s.handleTimeline))
	s.router.HandleFunc("GET /session/{id}/stream", s.withSession(s.handleStream))

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.Handle("GET /metrics", promhttp.Handler())

	s.registerMCPHandler()
}

// withSession resolves the {id} path segment to a live session.
func (s *Server) withSession(handler func(http.ResponseWriter, *http.Request, *session.Handle)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no live session with that id")
			return
		}
		handler(w, r, h)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.IsReady() {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
