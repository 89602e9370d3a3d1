package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore keeps partitions in process memory, each bounded by an LRU.
// Entries carry no TTL; staleness is handled at partition-version
// granularity by the Manager.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
	maxEntries int
}

// NewMemoryStore creates an in-memory store. maxEntries bounds each
// partition independently.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		partitions: make(map[string]*memoryPartition),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Open(name string) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		return p, nil
	}

	inner, err := lru.New[string, *Entry](s.maxEntries)
	if err != nil {
		return nil, err
	}
	p := &memoryPartition{lru: inner}
	s.partitions[name] = p
	return p, nil
}

func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	return names, nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		p.lru.Purge()
		delete(s.partitions, name)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions = make(map[string]*memoryPartition)
	return nil
}

type memoryPartition struct {
	lru *lru.Cache[string, *Entry]
}

func (p *memoryPartition) Get(key string) (*Entry, bool) {
	return p.lru.Get(key)
}

func (p *memoryPartition) Set(key string, entry *Entry) error {
	p.lru.Add(key, entry)
	return nil
}

func (p *memoryPartition) Len() int {
	return p.lru.Len()
}
