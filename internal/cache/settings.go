package cache

import (
	"fmt"
	"strings"
)

// EvictionPolicy selects how a tier is brought back under its quota.
type EvictionPolicy int

const (
	// EvictLeastRecentlyUsed removes the least recently used unprotected entries.
	EvictLeastRecentlyUsed EvictionPolicy = iota
	// EvictNone never removes entries; quotas are advisory.
	EvictNone
)

const (
	DefaultMaxMemoryBytes uint64 = 1 << 20
	DefaultMaxDiskBytes   uint64 = 32 << 20
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictNone:
		return "none"
	case EvictLeastRecentlyUsed:
		return "lru"
	default:
		return fmt.Sprintf("EvictionPolicy(%d)", int(p))
	}
}

// ParseEvictionPolicy accepts "lru" or "none" (case insensitive).
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lru", "least-recently-used":
		return EvictLeastRecentlyUsed, nil
	case "none":
		return EvictNone, nil
	}
	return 0, configError(nil, "cache: unknown eviction policy %q", s)
}

// Settings configures a Cache.
type Settings struct {
	// MaxMemoryBytes bounds the memory tier. Zero disables the memory tier.
	MaxMemoryBytes uint64
	// MaxDiskBytes bounds the disk tier. Zero means no quota.
	MaxDiskBytes uint64
	// DiskPath is the directory holding the persistent store.
	// Empty keeps the cache memory-only.
	DiskPath string
	// ProtectedDiskPath is an optional directory holding a store that is
	// opened read-only and consulted before the disk tier. Its entries never
	// expire and are never evicted.
	ProtectedDiskPath string
	// EvictionPolicy applies to both tiers.
	EvictionPolicy EvictionPolicy
}

// DefaultSettings returns a memory-only configuration with default quotas.
func DefaultSettings() Settings {
	return Settings{
		MaxMemoryBytes: DefaultMaxMemoryBytes,
		MaxDiskBytes:   DefaultMaxDiskBytes,
		EvictionPolicy: EvictLeastRecentlyUsed,
	}
}
