package cache

import "sync/atomic"

// Stats holds cache counters using atomic counters for lock-free reads.
type Stats struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

func (s *Stats) hit()           { s.hits.Add(1) }
func (s *Stats) miss()          { s.misses.Add(1) }
func (s *Stats) evict(n int64)  { s.evictions.Add(n) }
func (s *Stats) expire(n int64) { s.expirations.Add(n) }

// Snapshot is a point-in-time copy of cache statistics and tier usage.
type Snapshot struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`

	MemoryBytes   uint64 `json:"memory_bytes"`
	MemoryEntries int    `json:"memory_entries"`
	DiskBytes     uint64 `json:"disk_bytes"`
	DiskEntries   int    `json:"disk_entries"`
	Protected     int    `json:"protected"`
}

// HitRate returns the cache hit rate as a value between 0 and 1.
// Returns 0 if there have been no accesses.
func (s Snapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
