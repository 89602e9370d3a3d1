package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/classifier"
	"github.com/wudi/edgecache/internal/config"
	"github.com/wudi/edgecache/internal/fallback"
	"github.com/wudi/edgecache/internal/lifecycle"
	"github.com/wudi/edgecache/internal/logging"
	"github.com/wudi/edgecache/internal/middleware"
	"github.com/wudi/edgecache/internal/strategy"
)

// clientCookie identifies a client page across requests so the lifecycle
// controller can claim it on activation.
const clientCookie = "edgecache_client"

// runtime bundles everything tied to one deployment version. A config
// update builds a fresh runtime; the swap happens only after the new
// version's activation completes, so in-flight requests under the old
// version are unaffected.
type runtime struct {
	version    string
	classifier *classifier.Classifier
	engine     *strategy.Engine
	controller *lifecycle.Controller
	manager    *cache.Manager
}

// Server hosts the interception layer: it owns the listener, the shared
// partition store, and the per-version runtime.
type Server struct {
	store      cache.Store
	clients    *lifecycle.Registry
	runtime    atomic.Pointer[runtime]
	httpServer *http.Server
	listen     string
}

// NewServer builds a server for the initial configuration. The lifecycle
// (install + activate) has not run yet; call Run or Bootstrap.
func NewServer(cfg *config.Config, store cache.Store) (*Server, error) {
	s := &Server{
		store:   store,
		clients: lifecycle.NewRegistry(),
		listen:  cfg.Listen,
	}

	rt, err := s.buildRuntime(cfg)
	if err != nil {
		return nil, err
	}
	s.runtime.Store(rt)

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.AccessLog(),
	)
	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      chain.Then(http.HandlerFunc(s.intercept)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// buildRuntime wires classifier, strategies, and lifecycle for one version.
func (s *Server) buildRuntime(cfg *config.Config) (*runtime, error) {
	origin, err := url.Parse(cfg.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}

	naming := cache.Naming{Version: cfg.Version}
	manager := cache.NewManager(s.store, naming)
	fetcher := strategy.NewOriginFetcher(origin, cfg.Origin, cfg.Breaker)
	provider := fallback.New(cfg.Offline.Title)

	return &runtime{
		version:    cfg.Version,
		classifier: classifier.New(origin.Host, cfg.Classify, cfg.Precache),
		engine:     strategy.New(manager, fetcher, provider, origin, cfg.Cache.MaxBodySize),
		controller: lifecycle.New(manager, fetcher, origin, s.clients, cfg.Precache, cfg.Install),
		manager:    manager,
	}, nil
}

// Bootstrap runs install and activate for the current runtime. Interception
// stays in passthrough mode until it completes.
func (s *Server) Bootstrap(ctx context.Context) error {
	return s.runtime.Load().controller.Run(ctx)
}

// Update installs and activates a new configuration. The runtime swap, and
// with it serving under the new version, happens only after activation.
// A config whose version matches the running one is ignored.
func (s *Server) Update(ctx context.Context, cfg *config.Config) error {
	current := s.runtime.Load()
	if cfg.Version == current.version {
		return nil
	}

	logging.Info("update found",
		zap.String("from", current.version), zap.String("to", cfg.Version))

	rt, err := s.buildRuntime(cfg)
	if err != nil {
		return err
	}
	if err := rt.controller.Run(ctx); err != nil {
		return fmt.Errorf("update to %s: %w", cfg.Version, err)
	}

	s.runtime.Store(rt)
	logging.Info("update active", zap.String("version", cfg.Version))
	return nil
}

// intercept is the fetch hook: register the client, classify, dispatch.
func (s *Server) intercept(w http.ResponseWriter, r *http.Request) {
	rt := s.runtime.Load()

	clientID := s.identifyClient(w, r, rt.version)
	if v, ok := s.clients.Version(clientID); ok {
		w.Header().Set("X-Worker-Version", v)
	}

	// Requests arriving before activation completes are not intercepted.
	if !rt.controller.Active() {
		rt.engine.Serve(w, r, classifier.Bypass)
		return
	}

	rt.engine.Serve(w, r, rt.classifier.Classify(r))
}

// identifyClient reads or assigns the client cookie and registers the
// client with the lifecycle registry.
func (s *Server) identifyClient(w http.ResponseWriter, r *http.Request, version string) string {
	if c, err := r.Cookie(clientCookie); err == nil && c.Value != "" {
		s.clients.Register(c.Value, version)
		return c.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.clients.Register(id, version)
	return id
}

// Run starts the listener and the lifecycle, then blocks until SIGINT or
// SIGTERM triggers a graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	bootErr := make(chan error, 1)
	go func() { bootErr <- s.Bootstrap(ctx) }()

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("worker listening", zap.String("addr", s.listen))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	go s.logStats(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-bootErr:
		if err != nil {
			s.Shutdown(5 * time.Second)
			return fmt.Errorf("bootstrap: %w", err)
		}
		// Installed and active; keep serving.
	case err := <-serveErr:
		return err
	case <-quit:
		logging.Info("shutting down gracefully")
		return s.Shutdown(30 * time.Second)
	}

	select {
	case err := <-serveErr:
		return err
	case <-quit:
		logging.Info("shutting down gracefully")
		return s.Shutdown(30 * time.Second)
	}
}

// logStats periodically logs partition sizes and engine counters; the only
// metrics surface is the local log.
func (s *Server) logStats(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt := s.runtime.Load()
			stats := rt.engine.StatsSnapshot()
			logging.Info("cache stats",
				zap.String("version", rt.version),
				zap.Any("partitions", rt.manager.Stats()),
				zap.Int64("hits", stats.Hits),
				zap.Int64("misses", stats.Misses),
				zap.Int64("fallbacks", stats.Fallbacks),
				zap.Int("clients", s.clients.Len()),
			)
		}
	}
}

// Shutdown gracefully stops the listener and closes the store.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("http server shutdown error", zap.Error(err))
	}

	if err := s.store.Close(); err != nil {
		logging.Error("store close error", zap.Error(err))
		return err
	}

	logging.Info("server shutdown complete")
	return nil
}

// Handler exposes the interception handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
