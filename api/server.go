// Package api exposes the broker over HTTP and as MCP tools.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second

	requestIDHeader  = "X-Request-ID"
	adminTokenHeader = "X-Admin-Token"
	maxBodyBytes     = 1 << 20
)

type Asker interface {
	Ask(ctx context.Context, req broker.Request) (*broker.Response, error)
}

type Registry interface {
	List() []registry.Target
	Add(t registry.Target) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Logger   *slog.Logger
	Broker   Asker
	Registry Registry
	// Pinger, when set, gates /readyz on the cached backend handles.
	Pinger Pinger

	Version    string
	Production bool
	AdminToken string

	CORSOrigins       []string
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Broker == nil {
		return errors.New("broker is required")
	}
	if cfg.Registry == nil {
		return errors.New("registry is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:5173"}
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	mcp     *mcp.Server
	handler http.Handler
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "querybroker",
			Version: cfg.Version,
		}, nil),
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register mcp tools: %w", err)
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(instrument)
	r.Use(s.logMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", requestIDHeader, adminTokenHeader, "Mcp-Session-Id"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/connections", s.handleListConnections)
	r.Post("/api/connections", s.handleAddConnection)
	r.Handle("/mcp", mcpHandler)

	s.handler = r
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs the HTTP server on listener until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.RequestTimeout + 10*time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("failed to serve: %w", err)
		}
		close(serveErrCh)
	}()
	s.log.Info("api: listening", "address", listener.Addr().String())

	select {
	case <-ctx.Done():
		s.log.Info("api: stopping", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("api: shutdown complete")
		return nil
	case err, ok := <-serveErrCh:
		if !ok {
			return nil
		}
		return err
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(broker.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("api: request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", broker.RequestID(r.Context()),
		)
	})
}
