package classifier

import (
	"net/http/httptest"
	"testing"

	"github.com/wudi/edgecache/internal/config"
)

func newTestClassifier() *Classifier {
	return New("app.local", config.ClassifyConfig{
		StaticPrefixes: []string{"/static/"},
		APIPrefixes:    []string{"/api/"},
	}, []string{
		"/",
		"/static/css/style.css",
		"https://cdn.example.com/lib.js",
	})
}

func TestClassify(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name   string
		method string
		url    string
		header map[string]string
		want   Class
	}{
		{"post bypassed", "POST", "/api/progress", nil, Bypass},
		{"put bypassed", "PUT", "/admin/modules", nil, Bypass},
		{"delete bypassed", "DELETE", "/admin/modules", nil, Bypass},
		{"extension scheme bypassed", "GET", "chrome-extension://abcdef/inject.js", nil, Bypass},
		{"websocket scheme bypassed", "GET", "ws://app.local/live", nil, Bypass},
		{"static prefix", "GET", "/static/js/app.js", nil, Static},
		{"precache manifest path", "GET", "/", nil, Static},
		{"precache manifest css", "GET", "/static/css/style.css", nil, Static},
		{"cross origin asset", "GET", "https://cdn.other.com/font.woff2", nil, Static},
		{"precache cdn url", "GET", "https://cdn.example.com/lib.js", nil, Static},
		{"api prefix", "GET", "/api/progress", nil, API},
		{"navigate mode", "GET", "/module/3", map[string]string{"Sec-Fetch-Mode": "navigate"}, Navigation},
		{"html accept", "GET", "/module/3", map[string]string{"Accept": "text/html,application/xhtml+xml"}, Navigation},
		{"default dynamic", "GET", "/favicon.ico", nil, Dynamic},
		{"json accept dynamic", "GET", "/module/3/data", map[string]string{"Accept": "application/json"}, Dynamic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.url, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := c.Classify(r); got != tt.want {
				t.Errorf("Classify(%s %s) = %v, want %v", tt.method, tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifyStaticBeforeNavigation(t *testing.T) {
	c := newTestClassifier()

	// A cross-origin asset requested with an HTML accept hint must still be
	// static, never a navigation.
	r := httptest.NewRequest("GET", "https://cdn.other.com/page-embed.html", nil)
	r.Header.Set("Accept", "text/html")
	if got := c.Classify(r); got != Static {
		t.Errorf("cross-origin with HTML accept = %v, want Static", got)
	}
}

func TestClassifyStaticBeforeAPI(t *testing.T) {
	// A static prefix nested under an API-looking path wins by rule order.
	c := New("app.local", config.ClassifyConfig{
		StaticPrefixes: []string{"/api/static/"},
		APIPrefixes:    []string{"/api/"},
	}, nil)

	r := httptest.NewRequest("GET", "/api/static/logo.png", nil)
	if got := c.Classify(r); got != Static {
		t.Errorf("Classify = %v, want Static", got)
	}
}

func TestClassString(t *testing.T) {
	tests := []struct {
		class Class
		want  string
	}{
		{Bypass, "bypass"},
		{Static, "static"},
		{API, "api"},
		{Navigation, "navigation"},
		{Dynamic, "dynamic"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}
