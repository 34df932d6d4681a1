package cache

// Store is the ordered, crash-durable byte-string store behind the disk tier.
// A successful Put or Delete must survive a process crash once it returns.
// Implementations must be safe for concurrent reads.
type Store interface {
	// Get returns a copy of the value, or nil if key is absent.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn for every record whose key starts with prefix, in key
	// order. The slices are only valid during the call. Iteration stops at the
	// first error returned by fn.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Backend opens stores. A single Backend is created at startup and shared by
// every Cache of the process.
type Backend interface {
	Open(path string) (Store, error)
	// OpenReadOnly opens an existing store whose Put and Delete fail.
	OpenReadOnly(path string) (Store, error)
}
