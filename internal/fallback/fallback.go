package fallback

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
)

// offlinePage is fully self-contained: inline styles only, no external
// references, so it renders with zero network access.
const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - offline</title>
<style>
  body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
         background: #1a1d24; color: #e8eaed; display: flex; align-items: center;
         justify-content: center; min-height: 100vh; }
  .card { text-align: center; padding: 2rem 3rem; background: #242833;
          border-radius: 12px; max-width: 26rem; }
  h1 { font-size: 1.4rem; margin: 0 0 0.5rem; }
  p { color: #9aa0a6; margin: 0 0 1.5rem; }
  button { background: #4a7dff; color: #fff; border: none; padding: 0.6rem 1.6rem;
           border-radius: 6px; font-size: 1rem; cursor: pointer; }
  button:hover { background: #3a66d6; }
</style>
</head>
<body>
<div class="card">
  <h1>You are offline</h1>
  <p>This page is not available right now. Check your connection and try again.</p>
  <button onclick="location.reload()">Retry</button>
</div>
</body>
</html>
`

// Provider synthesizes substitute responses when both network and cache are
// unavailable.
type Provider struct {
	page []byte
}

// New renders the offline page once with the given application title.
func New(title string) *Provider {
	tmpl := template.Must(template.New("offline").Parse(offlinePage))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Title string }{Title: title}); err != nil {
		// Template and data are fixed; an execute failure is a programming error.
		panic(err)
	}
	return &Provider{page: buf.Bytes()}
}

// Page returns the rendered offline document.
func (p *Provider) Page() []byte {
	return p.page
}

// ServeNavigation writes the offline HTML page. Status is 200 so the
// browser renders it as a normal document.
func (p *Provider) ServeNavigation(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(p.page)
}

// ServeAPI writes a structured JSON error payload with status 503.
func (p *Provider) ServeAPI(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

// ServeStatic writes a minimal 503 for asset misses. Static assets fail
// structurally, not visually; no HTML body.
func (p *Provider) ServeStatic(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("resource not available offline"))
}
