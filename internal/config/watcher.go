package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/logging"
)

// Watcher watches the configuration file and announces new deployments.
// A deployment is a reload whose version field differs from the running
// one; edits that keep the version are absorbed without firing callbacks.
type Watcher struct {
	fs       *fsnotify.Watcher
	loader   *Loader
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
}

// NewWatcher creates a watcher and loads the initial configuration; a file
// that fails to load or validate is a construction error.
func NewWatcher(path string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:       fs,
		loader:   NewLoader(),
		path:     path,
		debounce: 500 * time.Millisecond,
	}

	cfg, err := w.loader.Load(path)
	if err != nil {
		fs.Close()
		return nil, err
	}
	w.current = cfg

	return w, nil
}

// OnUpdate registers a callback fired when a reload carries a new version.
func (w *Watcher) OnUpdate(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. The parent directory is watched, not the file
// itself, so atomic rename-style deploys are seen.
func (w *Watcher) Start() error {
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.watch()
	return nil
}

// watch folds bursts of file events into one reload per quiet period.
func (w *Watcher) watch() {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Error("config watcher error", zap.Error(err))
		}
	}
}

// reload parses the file and decides whether the change is a deployment.
// A file that no longer loads or validates is rejected; the last good
// config stays in effect.
func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		logging.Error("config reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if cfg.Version == prev.Version {
		logging.Debug("config reloaded, version unchanged",
			zap.String("version", cfg.Version))
		return
	}

	logging.Info("new deployment detected",
		zap.String("from", prev.Version), zap.String("to", cfg.Version))
	for _, cb := range callbacks {
		go cb(cfg)
	}
}

// GetConfig returns the last successfully loaded configuration.
func (w *Watcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	return w.fs.Close()
}

// SetDebounce sets the quiet period required after the last file event.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}
