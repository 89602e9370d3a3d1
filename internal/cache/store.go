package cache

// Partition is a named bucket of key→response entries. Lookups are exact
// match only; writes overwrite.
type Partition interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry) error
	Len() int
}

// Store abstracts the partition storage backend.
type Store interface {
	// Open idempotently creates or opens a partition.
	Open(name string) (Partition, error)
	// List returns the names of every partition in the store.
	List() ([]string, error)
	// Delete removes a partition and all of its entries.
	Delete(name string) error
	// Close releases backend resources.
	Close() error
}
