package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/config"
	"github.com/wudi/edgecache/internal/strategy"
)

func testInstallConfig() config.InstallConfig {
	return config.InstallConfig{Concurrency: 2, RetryMax: 200 * time.Millisecond}
}

func newTestController(t *testing.T, originURL, version string, precache []string) (*Controller, *cache.Manager, *Registry) {
	t.Helper()
	origin, err := url.Parse(originURL)
	if err != nil {
		t.Fatal(err)
	}

	manager := cache.NewManager(cache.NewMemoryStore(100), cache.Naming{Version: version})
	fetcher := strategy.NewOriginFetcher(origin,
		config.OriginConfig{Timeout: time.Second},
		config.BreakerConfig{FailureThreshold: 100, OpenTimeout: time.Minute},
	)
	clients := NewRegistry()
	return New(manager, fetcher, origin, clients, precache, testInstallConfig()), manager, clients
}

func TestInstallPrepopulatesStaticPartition(t *testing.T) {
	var hits atomic.Int64
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/":
			w.Write([]byte("<html>shell</html>"))
		case "/static/app.css":
			w.Write([]byte("body{}"))
		default:
			w.WriteHeader(404)
		}
	}))
	defer origin.Close()

	c, manager, _ := newTestController(t, origin.URL, "v1", []string{"/", "/static/app.css"})

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if c.State() != StateInstalled {
		t.Errorf("state = %v, want installed", c.State())
	}

	// Pre-population is observable without any further network call
	base, _ := url.Parse(origin.URL)
	fetched := hits.Load()
	for _, path := range []string{"/", "/static/app.css"} {
		u := *base
		u.Path = path
		key := cache.Key("GET", &u)
		if _, ok := manager.Lookup("static-v1", key); !ok {
			t.Errorf("%s not pre-cached", path)
		}
	}
	if hits.Load() != fetched {
		t.Error("cache lookup touched the network")
	}
}

func TestInstallLenientOnPartialFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte("shell"))
			return
		}
		w.WriteHeader(404)
	}))
	defer origin.Close()

	c, manager, _ := newTestController(t, origin.URL, "v1", []string{"/", "/static/gone.css"})

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install should tolerate partial failure: %v", err)
	}

	base, _ := url.Parse(origin.URL)
	u := *base
	u.Path = "/"
	if _, ok := manager.Lookup("static-v1", cache.Key("GET", &u)); !ok {
		t.Error("reachable manifest URL not cached")
	}
}

func TestInstallFatalWhenAllFail(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin.Close()

	c, _, _ := newTestController(t, origin.URL, "v1", []string{"/", "/static/app.css"})

	if err := c.Install(context.Background()); err == nil {
		t.Fatal("expected fatal install when every manifest URL fails")
	}
}

func TestInstallEmptyManifest(t *testing.T) {
	c, _, _ := newTestController(t, "http://app.local", "v1", nil)

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install with empty manifest: %v", err)
	}
}

func TestActivatePurgesStaleAndClaims(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	store := cache.NewMemoryStore(100)
	originURL, _ := url.Parse(origin.URL)
	manager := cache.NewManager(store, cache.Naming{Version: "v2"})
	fetcher := strategy.NewOriginFetcher(originURL,
		config.OriginConfig{Timeout: time.Second},
		config.BreakerConfig{},
	)
	clients := NewRegistry()
	clients.Register("client-a", "v1")
	clients.Register("client-b", "v1")

	// Outgoing version's partitions
	for _, name := range []string{"static-v1", "dynamic-v1", "api-v1"} {
		store.Open(name)
	}

	c := New(manager, fetcher, originURL, clients, []string{"/"}, testInstallConfig())
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("state = %v, want active", c.State())
	}
	if !c.Active() {
		t.Fatal("Active() = false after Run")
	}

	names, _ := store.List()
	for _, name := range names {
		switch name {
		case "static-v2", "dynamic-v2", "api-v2":
		default:
			t.Errorf("stale partition %s survived activation", name)
		}
	}

	for _, id := range []string{"client-a", "client-b"} {
		if v, _ := clients.Version(id); v != "v2" {
			t.Errorf("client %s controlled by %q, want v2", id, v)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInstalling, "installing"},
		{StateInstalled, "installed"},
		{StateActivating, "activating"},
		{StateActive, "active"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
