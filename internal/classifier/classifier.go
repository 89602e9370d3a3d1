package classifier

import (
	"net/http"
	"strings"

	"github.com/wudi/edgecache/internal/config"
)

// Class assigns an intercepted request to exactly one handling strategy.
type Class int

const (
	// Bypass requests are never wrapped; they flow straight to the network.
	Bypass Class = iota
	Static
	API
	Navigation
	Dynamic
)

func (c Class) String() string {
	switch c {
	case Bypass:
		return "bypass"
	case Static:
		return "static"
	case API:
		return "api"
	case Navigation:
		return "navigation"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Classifier inspects an intercepted request and assigns it a Class. It is
// pure: all inputs are compiled at construction.
type Classifier struct {
	originHost     string
	staticPrefixes []string
	apiPrefixes    []string
	precache       map[string]struct{}
}

// New compiles a classifier. originHost is the serving origin's host;
// precache is the static manifest (paths or absolute URLs).
func New(originHost string, cfg config.ClassifyConfig, precache []string) *Classifier {
	manifest := make(map[string]struct{}, len(precache))
	for _, u := range precache {
		manifest[u] = struct{}{}
	}
	return &Classifier{
		originHost:     strings.ToLower(originHost),
		staticPrefixes: cfg.StaticPrefixes,
		apiPrefixes:    cfg.APIPrefixes,
		precache:       manifest,
	}
}

// Classify applies the classification rules in order. Static is checked
// before API and Navigation so cross-origin assets are never treated as
// navigations.
func (c *Classifier) Classify(r *http.Request) Class {
	if r.Method != http.MethodGet {
		return Bypass
	}
	if r.URL.IsAbs() {
		switch r.URL.Scheme {
		case "http", "https":
		default:
			return Bypass
		}
	}

	if c.isStatic(r) {
		return Static
	}

	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return API
		}
	}

	if isNavigation(r) {
		return Navigation
	}

	return Dynamic
}

func (c *Classifier) isStatic(r *http.Request) bool {
	// Cross-origin assets (absolute-form request for another host)
	if r.URL.IsAbs() && strings.ToLower(r.URL.Host) != c.originHost {
		return true
	}

	for _, prefix := range c.staticPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}

	if _, ok := c.precache[r.URL.Path]; ok {
		return true
	}
	if r.URL.IsAbs() {
		if _, ok := c.precache[r.URL.String()]; ok {
			return true
		}
	}
	return false
}

// isNavigation reports whether the request is a page navigation: an
// explicit navigate fetch mode, or an Accept hint that includes HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
