// Package server exposes the search engine over HTTP: query, reindex,
// stats, note extraction, and the enumeration endpoints, with request
// IDs, panic recovery, access logging, a CORS allow-list, and
// per-endpoint-class rate limiting.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/embed"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/ratelimit"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/telemetry"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 5 * time.Second

// Deps are the collaborators a Server needs. Metrics is optional.
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry
	Resolver *profile.Resolver
	Embedder embed.Embedder
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Server is the Temoa HTTP service.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	resolver *profile.Resolver
	embedder embed.Embedder
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	router  chi.Router
	limits  limiterSet
	started time.Time

	mu        sync.Mutex
	boundAddr string
}

// limiterSet holds one limiter per endpoint class. Nil limiters mean
// rate limiting is disabled.
type limiterSet struct {
	search  *ratelimit.Limiter
	reindex *ratelimit.Limiter
	extract *ratelimit.Limiter
}

// New creates a Server, validating required dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:      deps.Config,
		registry: deps.Registry,
		resolver: deps.Resolver,
		embedder: deps.Embedder,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		started:  time.Now(),
	}

	if rl := deps.Config.Server.RateLimit; rl.Enabled {
		s.limits = limiterSet{
			search:  ratelimit.New(rl.Search.Requests, rl.Search.WindowDuration()),
			reindex: ratelimit.New(rl.Reindex.Requests, rl.Reindex.WindowDuration()),
			extract: ratelimit.New(rl.Extract.Requests, rl.Extract.WindowDuration()),
		}
	}

	for _, origin := range deps.Config.Server.AllowedOrigins {
		if origin == "*" {
			s.logger.Warn("cors_wildcard_enabled",
				slog.String("detail", "any origin may call this server; restrict server.allowed_origins"))
		}
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)
	r.Use(s.cors)

	r.Get("/search", s.limited(s.limits.search, s.handleSearch))
	r.Get("/stats", s.limited(s.limits.search, s.handleStats))
	r.Post("/reindex", s.limited(s.limits.reindex, s.handleReindex))
	r.Get("/extract", s.limited(s.limits.extract, s.handleExtract))

	r.Get("/health", s.handleHealth)
	r.Get("/vaults", s.handleVaults)
	r.Get("/profiles", s.handleProfiles)
	r.Get("/models", s.handleModels)
	r.Get("/config", s.handleConfig)
	return r
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listen address once the server is serving,
// empty before that. With port 0 in the config this is where the
// ephemeral port shows up.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within server.shutdown_timeout, draining in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.started = time.Now()
	s.mu.Unlock()

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("server_listening", slog.String("addr", s.Addr()))

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		s.logger.Warn("server_shutdown_forced", slog.Any("error", err))
		_ = httpSrv.Close()
	}
	<-errCh

	s.logger.Info("server_stopped")
	return ctx.Err()
}
