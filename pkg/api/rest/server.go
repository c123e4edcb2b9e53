package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vexdb/vexdb/pkg/api/rest/middleware"
	"github.com/vexdb/vexdb/pkg/db"
	"github.com/vexdb/vexdb/pkg/observability"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
}

// Server is the HTTP facade over the engine.
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewServer creates the server with its routes and middleware chain.
// metrics may be nil.
func NewServer(config Config, store *db.DB, logger *observability.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = observability.NewDefaultLogger()
	}
	if len(config.Auth.PublicPaths) == 0 {
		config.Auth.PublicPaths = []string{"/v1/health", "/metrics"}
	}

	s := &Server{
		config:  config,
		handler: NewHandler(store, logger),
		mux:     http.NewServeMux(),
		logger:  logger,
		metrics: metrics,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.withMiddleware(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("/v1/stats", s.handler.GetStats)
	s.mux.HandleFunc("/v1/stats/", s.handler.GetStats)

	s.mux.HandleFunc("/v1/collections", s.routeCollections)
	s.mux.HandleFunc("/v1/collections/", s.routeCollectionsWithName)

	s.mux.HandleFunc("/v1/vectors", s.routeVectors)
	s.mux.HandleFunc("/v1/vectors/search", s.handler.Search)
	s.mux.HandleFunc("/v1/vectors/delete", s.handler.Delete)
	s.mux.HandleFunc("/v1/vectors/batch", s.handler.BatchInsert)

	s.mux.HandleFunc("/v1/snapshot", s.handler.Snapshot)

	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) routeCollections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handler.CreateCollection(w, r)
	case http.MethodGet:
		s.handler.ListCollections(w, r)
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) routeCollectionsWithName(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		s.handler.DropCollection(w, r)
		return
	}
	writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) routeVectors(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handler.Insert(w, r)
		return
	}
	writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

// withMiddleware wraps the mux: request id, rate limit and auth run
// inside the access log so every outcome is recorded.
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = middleware.Auth(s.config.Auth)(handler)
	handler = middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit))(handler)
	handler = middleware.RequestID(handler)
	handler = s.accessLog(handler)
	return handler
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		fields := map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": duration,
		}
		if id, ok := middleware.RequestIDFromContext(r.Context()); ok {
			fields["request_id"] = id
		}
		s.logger.Info("access", fields)

		if s.metrics != nil {
			s.metrics.RecordRequest(routeLabel(r.URL.Path), fmt.Sprintf("%d", wrapped.statusCode), duration)
		}
	})
}

// routeLabel collapses parameterized paths so the metric cardinality
// stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/stats/"):
		return "/v1/stats/{collection}"
	case strings.HasPrefix(path, "/v1/collections/"):
		return "/v1/collections/{name}"
	default:
		return path
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
