package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/classifier"
	"github.com/wudi/edgecache/internal/fallback"
	"github.com/wudi/edgecache/internal/logging"
)

// Engine dispatches classified requests to caching strategies. Each
// partition is written only by its own strategy; they are never
// cross-written.
type Engine struct {
	manager     *cache.Manager
	fetcher     Fetcher
	fallback    *fallback.Provider
	origin      *url.URL
	maxBodySize int64
	coalescer   *Coalescer

	hits      atomic.Int64
	misses    atomic.Int64
	fallbacks atomic.Int64
}

// Stats is a point-in-time copy of engine counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Fallbacks int64 `json:"fallbacks"`
}

// New creates a strategy engine. maxBodySize caps stored bodies; larger
// responses are served live but never cached.
func New(manager *cache.Manager, fetcher Fetcher, fb *fallback.Provider, origin *url.URL, maxBodySize int64) *Engine {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &Engine{
		manager:     manager,
		fetcher:     fetcher,
		fallback:    fb,
		origin:      origin,
		maxBodySize: maxBodySize,
		coalescer:   NewCoalescer(0),
	}
}

// Serve handles one intercepted request according to its class.
func (e *Engine) Serve(w http.ResponseWriter, r *http.Request, class classifier.Class) {
	naming := e.manager.Naming()

	switch class {
	case classifier.Static:
		e.cacheFirst(w, r, naming.Static())
	case classifier.API:
		e.networkFirst(w, r, naming.API(), func() {
			e.fallback.ServeAPI(w, "service unavailable and no cached response")
		})
	case classifier.Navigation:
		e.networkFirst(w, r, naming.Dynamic(), func() {
			e.fallback.ServeNavigation(w)
		})
	case classifier.Dynamic:
		e.networkFirst(w, r, naming.Dynamic(), func() {
			e.fallback.ServeStatic(w)
		})
	default:
		e.passthrough(w, r)
	}
}

// cacheFirst favors speed and offline availability for immutable assets: a
// hit returns stored bytes without touching the network.
func (e *Engine) cacheFirst(w http.ResponseWriter, r *http.Request, partition string) {
	key := cache.Key(r.Method, AbsoluteURL(e.origin, r))

	if entry, ok := e.manager.Lookup(partition, key); ok {
		e.hits.Add(1)
		writeEntry(w, entry, "HIT")
		return
	}
	e.misses.Add(1)

	entry, err := e.fetchEntry(r, key)
	if err != nil {
		e.fallbacks.Add(1)
		logging.Debug("static fetch failed", zap.String("key", key), zap.Error(err))
		e.fallback.ServeStatic(w)
		return
	}

	e.storeEntry(partition, key, entry)
	writeEntry(w, entry, "MISS")
}

// networkFirst favors freshness: the live response wins whenever the
// network answers with success, with cache and then miss() as fallbacks.
// A reachable origin answering non-2xx with nothing cached is passed
// through unchanged; miss() fires only when neither network nor cache can
// answer at all.
func (e *Engine) networkFirst(w http.ResponseWriter, r *http.Request, partition string, miss func()) {
	key := cache.Key(r.Method, AbsoluteURL(e.origin, r))

	entry, err := e.fetchEntry(r, key)
	if err == nil && entry.StatusCode >= 200 && entry.StatusCode < 300 {
		e.storeEntry(partition, key, entry)
		writeEntry(w, entry, "MISS")
		return
	}

	if cached, ok := e.manager.Lookup(partition, key); ok {
		e.hits.Add(1)
		writeEntry(w, cached, "STALE")
		return
	}
	e.misses.Add(1)

	// Network answered with a non-2xx and nothing is cached: the origin's
	// own error response is more truthful than a synthesized one.
	if err == nil {
		writeEntry(w, entry, "MISS")
		return
	}

	e.fallbacks.Add(1)
	miss()
}

// passthrough streams the request to the network with no caching side
// effects.
func (e *Engine) passthrough(w http.ResponseWriter, r *http.Request) {
	resp, err := e.fetcher.Do(r.Context(), r)
	if err != nil {
		e.fallback.ServeAPI(w, "upstream unreachable")
		return
	}
	defer resp.Body.Close()

	for key, values := range sanitizeHeaders(resp.Header) {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.Debug("passthrough body copy interrupted", zap.Error(err))
	}
}

// fetchEntry coalesces concurrent fetches for the same key into a single
// origin round trip.
func (e *Engine) fetchEntry(r *http.Request, key string) (*cache.Entry, error) {
	entry, _, err := e.coalescer.Fetch(r.Context(), key, func() (*cache.Entry, error) {
		return FetchEntry(context.WithoutCancel(r.Context()), e.fetcher, r)
	})
	return entry, err
}

// storeEntry writes through to the partition. Storage failures are logged
// and swallowed; the live response is still served.
func (e *Engine) storeEntry(partition, key string, entry *cache.Entry) {
	if int64(len(entry.Body)) > e.maxBodySize {
		return
	}
	if err := e.manager.StoreResponse(partition, key, entry); err != nil {
		logging.Warn("cache store failed",
			zap.String("partition", partition), zap.String("key", key), zap.Error(err))
	}
}

// StatsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) StatsSnapshot() Stats {
	return Stats{
		Hits:      e.hits.Load(),
		Misses:    e.misses.Load(),
		Fallbacks: e.fallbacks.Load(),
	}
}

// writeEntry replays a response snapshot.
func writeEntry(w http.ResponseWriter, entry *cache.Entry, source string) {
	for key, values := range entry.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("X-Cache", source)
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Body)
}
