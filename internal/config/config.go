package config

import "time"

// OriginConfig describes the upstream server the worker fronts.
type OriginConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig selects and tunes the partition store backend.
type CacheConfig struct {
	Backend     string      `yaml:"backend"` // memory, leveldb, redis
	Path        string      `yaml:"path"`    // leveldb database directory
	MaxEntries  int         `yaml:"max_entries"`
	MaxBodySize int64       `yaml:"max_body_size"`
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig configures the shared partition store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ClassifyConfig drives request classification.
type ClassifyConfig struct {
	StaticPrefixes []string `yaml:"static_prefixes"`
	APIPrefixes    []string `yaml:"api_prefixes"`
}

// InstallConfig tunes precache behavior during install.
type InstallConfig struct {
	Concurrency int           `yaml:"concurrency"`
	RetryMax    time.Duration `yaml:"retry_max"` // max elapsed time per URL
}

// BreakerConfig tunes the origin circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// OfflineConfig customizes the offline fallback page.
type OfflineConfig struct {
	Title string `yaml:"title"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the complete worker configuration.
type Config struct {
	Version      string            `yaml:"version"`
	Listen       string            `yaml:"listen"`
	ReadTimeout  time.Duration     `yaml:"read_timeout"`
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	Origin       OriginConfig      `yaml:"origin"`
	Cache        CacheConfig       `yaml:"cache"`
	Classify     ClassifyConfig    `yaml:"classify"`
	Precache     []string          `yaml:"precache"`
	Install      InstallConfig     `yaml:"install"`
	Breaker      BreakerConfig     `yaml:"breaker"`
	Offline      OfflineConfig     `yaml:"offline"`
	Logging      LoggingConfig     `yaml:"logging"`
}

// DefaultConfig returns a config with sensible defaults for a single-origin
// deployment.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Origin: OriginConfig{
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     "leveldb",
			Path:        "data/cache",
			MaxEntries:  1000,
			MaxBodySize: 1 << 20, // 1MB
		},
		Classify: ClassifyConfig{
			StaticPrefixes: []string{"/static/"},
			APIPrefixes:    []string{"/api/"},
		},
		Install: InstallConfig{
			Concurrency: 4,
			RetryMax:    15 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Offline: OfflineConfig{
			Title: "Offline",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
