package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
version: "v1"
origin:
  url: http://localhost:5000
`

func TestParseDefaults(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Cache.Backend != "leveldb" {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxBodySize != 1<<20 {
		t.Errorf("Cache.MaxBodySize = %d", cfg.Cache.MaxBodySize)
	}
	if len(cfg.Classify.StaticPrefixes) != 1 || cfg.Classify.StaticPrefixes[0] != "/static/" {
		t.Errorf("StaticPrefixes = %v", cfg.Classify.StaticPrefixes)
	}
	if cfg.Origin.Timeout != 10*time.Second {
		t.Errorf("Origin.Timeout = %v", cfg.Origin.Timeout)
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("TEST_ORIGIN", "http://origin.internal:9000")

	cfg, err := NewLoader().Parse([]byte(`
version: "v1"
origin:
  url: ${TEST_ORIGIN}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Origin.URL != "http://origin.internal:9000" {
		t.Errorf("Origin.URL = %q", cfg.Origin.URL)
	}
}

func TestParseUnsetEnvKept(t *testing.T) {
	_, err := NewLoader().Parse([]byte(`
version: "v1"
origin:
  url: ${DEFINITELY_NOT_SET_XYZ}
`))
	if err == nil {
		t.Fatal("expected validation failure for unexpanded origin url")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing version",
			yaml:    "origin:\n  url: http://x\n",
			wantErr: "version is required",
		},
		{
			name:    "missing origin",
			yaml:    "version: v1\n",
			wantErr: "origin url is required",
		},
		{
			name:    "bad origin scheme",
			yaml:    "version: v1\norigin:\n  url: ftp://x\n",
			wantErr: "http or https",
		},
		{
			name:    "path-mounted origin",
			yaml:    "version: v1\norigin:\n  url: http://x/app\n",
			wantErr: "must not have a path",
		},
		{
			name:    "bad backend",
			yaml:    minimalYAML + "cache:\n  backend: magnetic-tape\n",
			wantErr: "invalid cache backend",
		},
		{
			name:    "redis without addr",
			yaml:    minimalYAML + "cache:\n  backend: redis\n",
			wantErr: "redis addr is required",
		},
		{
			name:    "bad static prefix",
			yaml:    minimalYAML + "classify:\n  static_prefixes: [\"static/\"]\n",
			wantErr: "must start with /",
		},
		{
			name:    "bad precache entry",
			yaml:    minimalYAML + "precache: [\"not a url\"]\n",
			wantErr: "precache entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseOriginTrailingSlash(t *testing.T) {
	_, err := NewLoader().Parse([]byte("version: v1\norigin:\n  url: http://localhost:5000/\n"))
	if err != nil {
		t.Fatalf("root path origin rejected: %v", err)
	}
}

func TestParsePrecacheAbsoluteURL(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(minimalYAML + `
precache:
  - /
  - https://cdn.example.com/lib.js
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Precache) != 2 {
		t.Errorf("Precache = %v", cfg.Precache)
	}
}
