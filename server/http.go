// Package server provides the HTTP server for the package index.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/package-index/catalog"
	"github.com/wolfeidau/package-index/metacache"
	"github.com/wolfeidau/package-index/protocol/simple"
	"github.com/wolfeidau/package-index/storage"
	"github.com/wolfeidau/package-index/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// DataDir is the storage root holding the archives.
	DataDir string

	// MaxUploadSize bounds upload request bodies. Zero uses the handler
	// default.
	MaxUploadSize int64

	// CacheMaxEntries bounds the metadata cache. Zero leaves it unbounded.
	CacheMaxEntries int

	// SweepInterval is how often the metadata cache drops entries for files
	// that changed or disappeared. Zero disables the sweeper.
	SweepInterval time.Duration

	// Watch evicts cache entries as soon as archives are deleted.
	Watch bool

	// Workers bounds catalog build concurrency. Zero uses the walker default.
	Workers int

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the package index.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	// Components
	store   storage.Store
	builder *catalog.Builder
	service *catalog.Service
	simple  *simple.Handler
	sweeper *metacache.Sweeper[*catalog.PackageFile]
	watcher *catalog.Watcher
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./packages"
	}

	fsStore, err := storage.NewFilesystem(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem storage: %w", err)
	}
	store := storage.NewInstrumented(fsStore, "filesystem")

	cache := metacache.New[*catalog.PackageFile](cfg.CacheMaxEntries)
	builder, err := catalog.NewBuilder(fsStore.Root(),
		catalog.WithCache(cache),
		catalog.WithWorkers(cfg.Workers),
		catalog.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating catalog builder: %w", err)
	}
	service := catalog.NewService(builder)

	var sweeper *metacache.Sweeper[*catalog.PackageFile]
	if cfg.SweepInterval > 0 {
		sweeper = metacache.NewSweeper(cache, metacache.SweeperConfig{
			Interval: cfg.SweepInterval,
			Logger:   cfg.Logger.With("component", "sweeper"),
		})
	}

	var watcher *catalog.Watcher
	if cfg.Watch {
		watcher, err = catalog.NewWatcher(builder, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
	}

	handler := simple.NewHandler(service, store,
		simple.WithLogger(cfg.Logger.With("component", "simple")),
		simple.WithMaxUploadSize(cfg.MaxUploadSize),
	)

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger,
		store:   store,
		builder: builder,
		service: service,
		simple:  handler,
		sweeper: sweeper,
		watcher: watcher,
	}

	// Build HTTP server
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  5 * time.Minute, // Long timeout for large uploads
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Service returns the catalog query service.
func (s *Server) Service() *catalog.Service {
	return s.service
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// Simple index, downloads, uploads and the JSON API. The handler does
	// its own method checks.
	mux.Handle("/", s.simple)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	telemetry.SetRoute(r, "internal")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		// Inject request tags so handlers can set route, cache_result, etc.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		if tags.Route == "" {
			tags.Route = deriveRoute(r.URL.Path)
		}

		attrs := []any{
			// Request identification
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"route", tags.Route,

			// Response details
			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			// Timing
			"duration_ms", duration.Milliseconds(),
			"duration", duration.String(),

			// Client info
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"http_version", fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		}

		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.Package != "" {
			attrs = append(attrs, "package", tags.Package)
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}
		if ct := wrapped.Header().Get("Content-Type"); ct != "" {
			attrs = append(attrs, "content_type", ct)
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start starts the background maintenance and then serves until the server
// is shut down.
func (s *Server) Start() error {
	if s.sweeper != nil {
		s.logger.Info("starting cache sweeper", "interval", s.config.SweepInterval)
		if err := s.sweeper.Start(context.Background()); err != nil {
			return fmt.Errorf("starting cache sweeper: %w", err)
		}
	}
	if s.watcher != nil {
		s.logger.Info("starting deletion watcher", "root", s.builder.Root())
		if err := s.watcher.Start(context.Background()); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	s.logger.Info("starting server", "address", s.config.Address, "data_dir", s.builder.Root())
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
// It preserves http.Flusher and http.Hijacker interfaces for streaming support.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for connection upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// deriveRoute classifies requests no handler tagged, such as redirects and
// not-found responses.
func deriveRoute(path string) string {
	switch {
	case path == "/health" || path == "/metrics":
		return "internal"
	case len(path) >= 7 && path[:7] == "/simple":
		return "simple"
	case len(path) >= 10 && path[:10] == "/packages/":
		return "packages"
	case len(path) >= 5 && path[:5] == "/api/", path == "/search":
		return "api"
	default:
		return "unknown"
	}
}
