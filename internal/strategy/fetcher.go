package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/config"
	"github.com/wudi/edgecache/internal/logging"
)

// Fetcher performs the network leg of a strategy.
type Fetcher interface {
	// Fetch executes the request against the origin through the circuit
	// breaker. A transport failure or an open breaker returns an error.
	Fetch(ctx context.Context, r *http.Request) (*http.Response, error)
	// Do executes the request without breaker accounting; used for
	// passthrough traffic.
	Do(ctx context.Context, r *http.Request) (*http.Response, error)
}

// hopByHopHeaders are connection-level headers that must not be forwarded
// or cached.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// OriginFetcher proxies requests to the configured origin. Repeated
// transport failures open a circuit breaker so network-first strategies
// fail fast to cache instead of waiting out timeouts while offline.
type OriginFetcher struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewOriginFetcher creates a fetcher for the origin base URL.
func NewOriginFetcher(base *url.URL, originCfg config.OriginConfig, breakerCfg config.BreakerConfig) *OriginFetcher {
	timeout := originCfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	threshold := breakerCfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := breakerCfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "origin",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("origin breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &OriginFetcher{
		base: base,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Cached navigations must replay the origin's final page, so
			// redirects are followed rather than stored.
		},
		timeout: timeout,
		breaker: breaker,
	}
}

// AbsoluteURL resolves the request's target against the origin base.
// Absolute-form requests (cross-origin assets) keep their own host.
func AbsoluteURL(base *url.URL, r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u
	}
	u := *base
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return &u
}

func (f *OriginFetcher) outbound(ctx context.Context, r *http.Request) (*http.Request, error) {
	target := AbsoluteURL(f.base, r)

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}

	out.Header = r.Header.Clone()
	for _, h := range hopByHopHeaders {
		out.Header.Del(h)
	}
	return out, nil
}

func (f *OriginFetcher) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)

	resp, err := f.breaker.Execute(func() (*http.Response, error) {
		out, err := f.outbound(fetchCtx, r)
		if err != nil {
			return nil, err
		}
		return f.client.Do(out)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	// The body outlives this call; tie the timeout to body close.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (f *OriginFetcher) Do(ctx context.Context, r *http.Request) (*http.Response, error) {
	out, err := f.outbound(ctx, r)
	if err != nil {
		return nil, err
	}
	return f.client.Do(out)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// FetchEntry performs the network leg of a strategy and reads the body in
// full, so an aborted transfer can never leave a torn cache entry.
func FetchEntry(ctx context.Context, f Fetcher, r *http.Request) (*cache.Entry, error) {
	resp, err := f.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &cache.Entry{
		StatusCode: resp.StatusCode,
		Headers:    sanitizeHeaders(resp.Header),
		Body:       body,
		StoredAt:   time.Now(),
	}, nil
}

// sanitizeHeaders returns a copy of h without hop-by-hop headers.
func sanitizeHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range hopByHopHeaders {
		out.Del(name)
	}
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			out.Del(strings.TrimSpace(name))
		}
	}
	return out
}
