package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/config"
	"github.com/wudi/edgecache/internal/logging"
	"github.com/wudi/edgecache/internal/strategy"
)

// State tracks the controller through its lifecycle.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Controller orchestrates install (pre-populate the static partition),
// activate (purge stale partitions, claim clients), and gates fetch
// interception on the active state.
type Controller struct {
	state   atomic.Int32
	manager *cache.Manager
	fetcher strategy.Fetcher
	origin  *url.URL
	clients *Registry

	precache []string
	install  config.InstallConfig
}

// New creates a controller for one deployment version.
func New(manager *cache.Manager, fetcher strategy.Fetcher, origin *url.URL, clients *Registry, precache []string, installCfg config.InstallConfig) *Controller {
	c := &Controller{
		manager:  manager,
		fetcher:  fetcher,
		origin:   origin,
		clients:  clients,
		precache: precache,
		install:  installCfg,
	}
	c.state.Store(int32(StateInstalling))
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Active reports whether fetch interception is allowed.
func (c *Controller) Active() bool {
	return c.State() == StateActive
}

// Run performs install and then immediately activates: a deployed update
// takes effect without waiting for old clients to close.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Install opens this version's static partition and bulk-fetches the
// precache manifest. The policy is lenient: individual failures are logged
// warnings, but nothing cached at all is fatal since there would be nothing
// to serve offline.
func (c *Controller) Install(ctx context.Context) error {
	c.state.Store(int32(StateInstalling))
	naming := c.manager.Naming()

	partition, err := c.manager.OpenPartition(naming.Static())
	if err != nil {
		return fmt.Errorf("open static partition: %w", err)
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	concurrency := c.install.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	for _, raw := range c.precache {
		raw := raw
		g.Go(func() error {
			if err := c.precacheOne(gctx, partition, raw); err != nil {
				failed.Add(1)
				logging.Warn("precache fetch failed",
					zap.String("url", raw), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	if n := len(c.precache); n > 0 && failed.Load() == int64(n) {
		return fmt.Errorf("install failed: none of %d precache URLs could be fetched", n)
	}

	c.state.Store(int32(StateInstalled))
	logging.Info("install complete",
		zap.String("version", naming.Version),
		zap.Int("precached", len(c.precache)-int(failed.Load())),
		zap.Int64("failed", failed.Load()))
	return nil
}

// precacheOne fetches one manifest URL with exponential backoff on
// transient failures and stores the response in the static partition.
func (c *Controller) precacheOne(ctx context.Context, partition cache.Partition, raw string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return err
	}

	target := strategy.AbsoluteURL(c.origin, req)
	key := cache.Key(http.MethodGet, target)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.install.RetryMax

	return backoff.Retry(func() error {
		entry, err := strategy.FetchEntry(ctx, c.fetcher, req)
		if err != nil {
			return err
		}
		if entry.StatusCode < 200 || entry.StatusCode >= 300 {
			// A reachable origin answering non-2xx will not improve on retry.
			return backoff.Permanent(fmt.Errorf("status %d", entry.StatusCode))
		}
		if err := partition.Set(key, entry); err != nil {
			return backoff.Permanent(fmt.Errorf("store: %w", err))
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// Activate purges partitions from older versions and claims all open
// clients. Purge failures are best-effort and never block activation.
func (c *Controller) Activate(ctx context.Context) error {
	c.state.Store(int32(StateActivating))
	naming := c.manager.Naming()

	if err := c.manager.PurgeStale(naming.Current()); err != nil {
		logging.Warn("stale partition purge incomplete", zap.Error(err))
	}

	claimed := c.clients.Claim(naming.Version)

	c.state.Store(int32(StateActive))
	logging.Info("activation complete",
		zap.String("version", naming.Version),
		zap.Int("clients_claimed", claimed))
	return ctx.Err()
}
