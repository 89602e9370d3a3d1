package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/config"
	"github.com/wudi/edgecache/internal/logging"
	"github.com/wudi/edgecache/internal/worker"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/edgecache.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgecache %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration
	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	// Initialize structured logger
	logger, err := logging.NewWithFile(cfg.Logging.Level, logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting edgecache",
		zap.String("build", version),
		zap.String("config", *configPath),
		zap.String("cache_version", cfg.Version),
		zap.String("origin", cfg.Origin.URL),
		zap.Int("precache_urls", len(cfg.Precache)),
	)

	store, err := worker.OpenStore(cfg.Cache)
	if err != nil {
		logging.Error("failed to open cache store", zap.Error(err))
		os.Exit(1)
	}

	server, err := worker.NewServer(cfg, store)
	if err != nil {
		logging.Error("failed to create worker", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A config change that bumps the version drives a new install/activate
	// cycle, like a service worker update.
	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		logging.Error("failed to create config watcher", zap.Error(err))
		os.Exit(1)
	}
	watcher.OnUpdate(func(next *config.Config) {
		if err := server.Update(ctx, next); err != nil {
			logging.Error("update failed", zap.Error(err))
		}
	})
	if err := watcher.Start(); err != nil {
		logging.Error("failed to start config watcher", zap.Error(err))
		os.Exit(1)
	}
	defer watcher.Stop()

	if err := server.Run(ctx); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
