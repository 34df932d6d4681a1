// Package cache implements a two-tier (memory + disk) key/value cache with
// per-entry expiry, byte quotas per tier and key protection.
//
// Protected keys, or keys under a protected prefix, are never evicted and
// never expire until they are released. Everything else is evicted least
// recently used first once a tier goes over its quota, and expires lazily on
// read.
//
// A Cache is safe for concurrent use by multiple goroutines.
package cache

import (
	"bytes"
	"sync"
	"time"

	"go.uber.org/zap"
)

type config struct {
	clock Clock
	log   *zap.Logger
}

// Option configures a Cache.
type Option func(*config)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock sets a custom clock for expiry decisions.
// Useful for testing TTL behavior.
func WithClock(clk Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// Cache is the entry point of the package. It owns both tiers, their size
// totals and the protection set, and serializes every operation on mu.
type Cache struct {
	settings Settings
	backend  Backend
	cfg      config

	mu        sync.Mutex
	open      bool
	memory    *memoryTier
	disk      *diskTier
	readOnly  *readOnlyTier
	protected protectionSet
	evictor   *evictor
	stats     Stats
}

// New creates a closed Cache. backend may be nil for memory-only settings.
func New(settings Settings, backend Backend, opts ...Option) *Cache {
	cfg := config{clock: realClock{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Cache{settings: settings, backend: backend, cfg: cfg}
	c.evictor = &evictor{
		policy: settings.EvictionPolicy,
		keep:   c.protected.isProtected,
		stats:  &c.stats,
		log:    cfg.log,
	}
	return c
}

// Open prepares the tiers and, when a disk path is set, opens the persistent
// store and rebuilds its index. Calling Open on an opened cache is a no-op.
func (c *Cache) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}

	var disk *diskTier
	if path := c.settings.DiskPath; path != "" {
		if c.backend == nil {
			return configError(nil, "cache: disk path %q set without a storage backend", path)
		}
		store, err := c.backend.Open(path)
		if err != nil {
			c.cfg.log.Error("failed to open disk cache", zap.String("path", path), zap.Error(err))
			return configError(err, "cache: open disk path %q", path)
		}
		d, purged, err := openDiskTier(store, c.settings.MaxDiskBytes)
		if err != nil {
			_ = store.Close()
			c.cfg.log.Error("failed to index disk cache", zap.String("path", path), zap.Error(err))
			return err
		}
		if len(purged) > 0 {
			c.cfg.log.Warn("dropped corrupt disk records", zap.Int("count", len(purged)))
		}
		disk = d
		c.cfg.log.Info("disk cache opened",
			zap.String("path", path),
			zap.Int("entries", d.len()),
			zap.Uint64("bytes", d.used()))
	}

	var readOnly *readOnlyTier
	if path := c.settings.ProtectedDiskPath; path != "" {
		if c.backend == nil {
			closeDisk(disk)
			return configError(nil, "cache: protected disk path %q set without a storage backend", path)
		}
		store, err := c.backend.OpenReadOnly(path)
		if err != nil {
			closeDisk(disk)
			c.cfg.log.Error("failed to open protected disk cache", zap.String("path", path), zap.Error(err))
			return configError(err, "cache: open protected disk path %q", path)
		}
		readOnly = &readOnlyTier{store: store}
		c.cfg.log.Info("protected disk cache opened", zap.String("path", path))
	}

	if c.settings.MaxMemoryBytes > 0 {
		c.memory = newMemoryTier(c.settings.MaxMemoryBytes)
	}
	c.disk, c.readOnly = disk, readOnly
	c.open = true
	return nil
}

func closeDisk(d *diskTier) {
	if d != nil {
		_ = d.close()
	}
}

// Close releases the persistent store and drops the memory tier. Protections
// survive Close.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	var err error
	if c.disk != nil {
		err = c.disk.close()
	}
	if c.readOnly != nil {
		if rerr := c.readOnly.close(); err == nil {
			err = rerr
		}
	}
	c.memory, c.disk, c.readOnly = nil, nil, nil
	c.open = false
	return err
}

// Put stores value under key. A ttl <= 0 never expires. The memory tier
// always receives the value; the disk tier too when a disk path is set. Only
// storage faults are reported; quota pressure is resolved by eviction.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	now := c.cfg.clock.Now()
	deadline := expiresAt(now, ttl)
	value = bytes.Clone(value)
	if value == nil {
		value = []byte{}
	}

	// The disk write goes first so that a failed Put leaves both tiers on
	// the previous value.
	if c.disk != nil {
		if err := c.disk.put(key, value, deadline); err != nil {
			c.cfg.log.Error("disk put failed", zap.String("key", key), zap.Error(err))
			return err
		}
	}
	c.putMemory(key, value, deadline, now.UnixNano())
	if c.disk == nil {
		return nil
	}
	return c.evictor.enforce("disk", c.disk, now.UnixNano())
}

func (c *Cache) putMemory(key string, value []byte, deadline, now int64) {
	if c.memory == nil {
		return
	}
	if size := uint64(len(value)); size > c.memory.max && !c.protected.isProtected(key) {
		c.memory.remove(key)
		c.cfg.log.Warn("value larger than memory quota",
			zap.String("key", key),
			zap.Uint64("size", size),
			zap.Uint64("limit", c.memory.max))
		return
	}
	c.memory.put(key, value, deadline)
	_ = c.evictor.enforce("memory", c.memory, now)
}

// Get returns the value for key. The memory tier is consulted first, then the
// read-only protected store, then the disk tier; a hit below memory is
// promoted into memory. Expired entries that are not protected are
// removed and reported absent. Get never fails: a store fault is a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, false
	}
	now := c.cfg.clock.Now().UnixNano()
	keep := c.protected.isProtected

	if c.memory != nil {
		if v, _, ok := c.memory.get(key, now, keep); ok {
			if c.disk != nil {
				c.disk.touch(key)
			}
			c.stats.hit()
			return bytes.Clone(v), true
		}
	}
	if c.readOnly != nil {
		v, ok, err := c.readOnly.get(key)
		if err != nil {
			c.cfg.log.Warn("protected disk get failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			c.putMemory(key, v, 0, now)
			c.stats.hit()
			return bytes.Clone(v), true
		}
	}
	if c.disk != nil {
		v, deadline, ok, err := c.disk.get(key, now, keep)
		if err != nil {
			c.cfg.log.Warn("disk get failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			c.putMemory(key, v, deadline, now)
			c.stats.hit()
			return bytes.Clone(v), true
		}
	}
	c.stats.miss()
	return nil, false
}

// Contains reports whether Get would return a value for key, without reading
// the value or refreshing its recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return false
	}
	now := c.cfg.clock.Now().UnixNano()
	keep := c.protected.isProtected

	if c.memory != nil && c.memory.contains(key, now, keep) {
		return true
	}
	if c.readOnly != nil {
		_, ok, err := c.readOnly.get(key)
		if err != nil {
			c.cfg.log.Warn("protected disk contains failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			return true
		}
	}
	if c.disk != nil {
		ok, err := c.disk.contains(key, now, keep)
		if err != nil {
			c.cfg.log.Warn("disk contains failed", zap.String("key", key), zap.Error(err))
		}
		return ok
	}
	return false
}

// Remove deletes key from both tiers, protected or not.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.disk != nil {
		if err := c.disk.remove(key); err != nil {
			return err
		}
	}
	if c.memory != nil {
		c.memory.remove(key)
	}
	return nil
}

// RemoveKeysWithPrefix deletes every key starting with prefix from both tiers.
func (c *Cache) RemoveKeysWithPrefix(prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	// Memory copies go even when the disk fails part way: whatever is left
	// on disk is still the current value of its key.
	if c.memory != nil {
		c.memory.removePrefix(prefix)
	}
	if c.disk != nil {
		if _, err := c.disk.removePrefix(prefix); err != nil {
			return err
		}
	}
	return nil
}

// Protect pins keys and key prefixes against eviction and expiry. It may be
// called on a closed cache and always succeeds.
func (c *Cache) Protect(keys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protected.protect(keys)
	return true
}

// Release removes protections that were stored verbatim. A key that is only
// covered by a protected prefix stays protected and is not reported. It
// reports whether at least one protection was removed.
func (c *Cache) Release(keys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protected.release(keys)
}

// IsProtected reports whether key is pinned, directly or by prefix.
func (c *Cache) IsProtected(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protected.isProtected(key)
}

// Clear empties both tiers. Protections and the read-only protected store
// are kept.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.memory != nil {
		c.memory.clear()
	}
	if c.disk != nil {
		return c.disk.clear()
	}
	return nil
}

// Stats returns a snapshot of the counters and tier usage.
func (c *Cache) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Evictions:   c.stats.evictions.Load(),
		Expirations: c.stats.expirations.Load(),
		Protected:   c.protected.len(),
	}
	if c.memory != nil {
		s.MemoryBytes, s.MemoryEntries = c.memory.used(), c.memory.len()
	}
	if c.disk != nil {
		s.DiskBytes, s.DiskEntries = c.disk.used(), c.disk.len()
	}
	return s
}
