package cache

import "go.uber.org/zap"

// tier is the view of a storage level the evictor works on.
type tier interface {
	used() uint64
	limit() uint64
	// victims returns keys not kept by keep, least recently used first,
	// whose sizes add up to at least need, or every such key if they do not.
	victims(keep func(string) bool, need uint64) []string
	purgeExpired(now int64, keep func(string) bool) (int, error)
	evict(key string) error
}

var (
	_ tier = (*memoryTier)(nil)
	_ tier = (*diskTier)(nil)
)

// evictor brings a tier back under its quota after a write.
type evictor struct {
	policy EvictionPolicy
	keep   func(string) bool
	stats  *Stats
	log    *zap.Logger
}

// enforce evicts from t until it fits its limit. When every remaining entry
// is kept the overage is tolerated. A zero limit means no quota.
func (e *evictor) enforce(name string, t tier, now int64) error {
	if e.policy == EvictNone || t.limit() == 0 || t.used() <= t.limit() {
		return nil
	}
	purged, err := t.purgeExpired(now, e.keep)
	if err != nil {
		return err
	}
	e.stats.expire(int64(purged))

	evicted := 0
	if used := t.used(); used > t.limit() {
		for _, key := range t.victims(e.keep, used-t.limit()) {
			if err := t.evict(key); err != nil {
				e.stats.evict(int64(evicted))
				return err
			}
			evicted++
		}
	}
	if t.used() > t.limit() {
		e.log.Warn("quota exceeded by protected entries",
			zap.String("tier", name),
			zap.Uint64("used", t.used()),
			zap.Uint64("limit", t.limit()))
	}
	e.stats.evict(int64(evicted))
	if purged > 0 || evicted > 0 {
		e.log.Debug("evicted",
			zap.String("tier", name),
			zap.Int("expired", purged),
			zap.Int("evicted", evicted))
	}
	return nil
}
