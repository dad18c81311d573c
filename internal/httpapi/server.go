// Package httpapi is the process's read-only operational HTTP surface:
// liveness, readiness, and Prometheus metrics. Grounded on the teacher's
// internal/interfaces/http/server.go (mux.Router, a chained middleware
// stack, a request-ID-per-request pattern via google/uuid), narrowed to
// the three endpoints this domain actually needs — there is no
// candidates/explain/regime surface here, since the deal and ingestion
// state this process holds is pushed to the notification queue and the
// persistence sink rather than pulled over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fmenezes/anxiousbot/internal/venue"
)

// ServerConfig configures the listener and timeouts, matching the
// teacher's ServerConfig shape.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds to localhost only, same as the teacher's
// "local-only by default" rationale — this surface is for a co-located
// Prometheus scraper and orchestrator health checks, not public access.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the read-only health/metrics HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	registry *venue.Registry
	log      zerolog.Logger
	config   ServerConfig
	ready    func() bool
}

// NewServer builds a Server bound to config.Host:config.Port. ready is
// polled by /readyz; registry is inspected by /healthz to report the
// configured and authenticated venue IDs.
func NewServer(config ServerConfig, registry *venue.Registry, ready func() bool, logger zerolog.Logger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		log:      logger,
		config:   config,
		ready:    ready,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.log.Debug().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type healthResponse struct {
	Status             string   `json:"status"`
	AvailableVenues    []string `json:"available_venues,omitempty"`
	AuthenticatedVenues []string `json:"authenticated_venues,omitempty"`
}

// handleHealthz always reports 200 once the process is up; venue
// availability is surfaced for visibility but doesn't fail liveness,
// since a venue outage isn't a reason for an orchestrator to restart this
// process.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.registry != nil {
		resp.AvailableVenues = s.registry.AvailableIDs()
		resp.AuthenticatedVenues = s.registry.AuthenticatedIDs()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleReadyz reports 503 until the caller-supplied ready func returns
// true, e.g. once at least one venue has completed its initial setup.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "not ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ready"})
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
