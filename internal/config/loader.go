package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("version is required")
	}
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if cfg.Origin.URL == "" {
		return fmt.Errorf("origin url is required")
	}
	u, err := url.Parse(cfg.Origin.URL)
	if err != nil {
		return fmt.Errorf("invalid origin url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin url must include a host")
	}
	// Request paths replace the origin path wholesale, so a path-mounted
	// origin would silently lose its prefix.
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("origin url must not have a path, got %q", u.Path)
	}

	validBackends := map[string]bool{
		"memory":  true,
		"leveldb": true,
		"redis":   true,
	}
	if !validBackends[cfg.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "leveldb" && cfg.Cache.Path == "" {
		return fmt.Errorf("cache path is required for leveldb backend")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required for redis backend")
	}

	for i, p := range cfg.Classify.StaticPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("static prefix %d must start with /: %s", i, p)
		}
	}
	for i, p := range cfg.Classify.APIPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("api prefix %d must start with /: %s", i, p)
		}
	}

	for i, raw := range cfg.Precache {
		if strings.HasPrefix(raw, "/") {
			continue
		}
		pu, err := url.Parse(raw)
		if err != nil || pu.Scheme == "" || pu.Host == "" {
			return fmt.Errorf("precache entry %d must be a path or absolute URL: %s", i, raw)
		}
	}

	return nil
}
