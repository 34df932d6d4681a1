package cache

import "time"

// KV is the cache contract seen by the read repositories, served either by a
// Cache in the same process (Local) or by the cache daemon (Client).
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	// Get returns ErrNotFound on a miss.
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Contains(key string) (bool, error)
	Protect(keys []string) (bool, error)
	Release(keys []string) (bool, error)
	RemoveKeysWithPrefix(prefix string) error
	Clear() error
	Stats() (Snapshot, error)
}

// Local adapts c to KV.
func Local(c *Cache) KV { return local{c: c} }

type local struct{ c *Cache }

func (l local) Get(key string) ([]byte, error) {
	v, ok := l.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (l local) Put(key string, value []byte, ttl time.Duration) error {
	return l.c.Put(key, value, ttl)
}

func (l local) Delete(key string) error { return l.c.Remove(key) }

func (l local) Contains(key string) (bool, error) { return l.c.Contains(key), nil }

func (l local) Protect(keys []string) (bool, error) { return l.c.Protect(keys), nil }

func (l local) Release(keys []string) (bool, error) { return l.c.Release(keys), nil }

func (l local) RemoveKeysWithPrefix(prefix string) error { return l.c.RemoveKeysWithPrefix(prefix) }

func (l local) Clear() error { return l.c.Clear() }

func (l local) Stats() (Snapshot, error) { return l.c.Stats(), nil }
