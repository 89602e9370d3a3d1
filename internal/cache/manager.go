package cache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/logging"
)

// Manager owns the versioned cache partitions. All configuration is
// explicit so independently configured instances can coexist in tests.
type Manager struct {
	store  Store
	naming Naming
}

// NewManager creates a manager over the given store for one version's
// partition set.
func NewManager(store Store, naming Naming) *Manager {
	return &Manager{store: store, naming: naming}
}

// Naming returns the version naming in effect.
func (m *Manager) Naming() Naming {
	return m.naming
}

// OpenPartition idempotently creates or opens a partition.
func (m *Manager) OpenPartition(name string) (Partition, error) {
	return m.store.Open(name)
}

// Lookup performs an exact-match lookup in a partition. A partition that
// cannot be opened reads as a miss.
func (m *Manager) Lookup(partition, key string) (*Entry, bool) {
	p, err := m.store.Open(partition)
	if err != nil {
		logging.Warn("partition open failed on lookup",
			zap.String("partition", partition), zap.Error(err))
		return nil, false
	}
	return p.Get(key)
}

// StoreResponse writes an entry with overwrite semantics. Only successful
// (2xx) responses are stored; anything else is silently skipped.
func (m *Manager) StoreResponse(partition, key string, entry *Entry) error {
	if entry.StatusCode < 200 || entry.StatusCode >= 300 {
		return nil
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	p, err := m.store.Open(partition)
	if err != nil {
		return fmt.Errorf("open partition %s: %w", partition, err)
	}
	return p.Set(key, entry)
}

// PurgeStale deletes every partition whose name is not in the current set.
// Individual deletion failures are logged and skipped; only a failure to
// list partitions is returned.
func (m *Manager) PurgeStale(current []string) error {
	keep := make(map[string]struct{}, len(current))
	for _, name := range current {
		keep[name] = struct{}{}
	}

	names, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}

	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := m.store.Delete(name); err != nil {
			logging.Warn("stale partition delete failed",
				zap.String("partition", name), zap.Error(err))
			continue
		}
		logging.Info("purged stale partition", zap.String("partition", name))
	}
	return nil
}

// Stats reports entry counts per partition.
func (m *Manager) Stats() map[string]int {
	names, err := m.store.List()
	if err != nil {
		return nil
	}

	stats := make(map[string]int, len(names))
	for _, name := range names {
		p, err := m.store.Open(name)
		if err != nil {
			continue
		}
		stats[name] = p.Len()
	}
	return stats
}
