package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CacheSuite struct {
	suite.Suite
	clk     *fakeClock
	backend *BoltBackend
	dir     string
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.clk = newFakeClock()
	s.backend = NewBoltBackend(BoltOptions{NoSync: true})
	s.dir = s.T().TempDir()
}

func (s *CacheSuite) newCache(settings Settings) *Cache {
	c := New(settings, s.backend, WithClock(s.clk))
	s.Require().NoError(c.Open())
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

func (s *CacheSuite) diskSettings() Settings {
	return Settings{
		MaxMemoryBytes: DefaultMaxMemoryBytes,
		MaxDiskBytes:   DefaultMaxDiskBytes,
		DiskPath:       s.dir,
		EvictionPolicy: EvictLeastRecentlyUsed,
	}
}

func (s *CacheSuite) TestRoundTrip() {
	for name, settings := range map[string]Settings{
		"memory only": DefaultSettings(),
		"disk":        s.diskSettings(),
	} {
		s.Run(name, func() {
			c := s.newCache(settings)
			s.Require().NoError(c.Put("key", []byte("value"), time.Hour))
			v, ok := c.Get("key")
			s.True(ok)
			s.Equal([]byte("value"), v)
			s.True(c.Contains("key"))
			s.False(c.Contains("other"))
		})
	}
}

func (s *CacheSuite) TestPutOverwrites() {
	c := s.newCache(s.diskSettings())
	s.Require().NoError(c.Put("key", []byte("1"), time.Second))
	s.Require().NoError(c.Put("key", []byte("111"), 0))

	s.clk.Advance(time.Hour)
	v, ok := c.Get("key")
	s.True(ok)
	s.Equal([]byte("111"), v)
	st := c.Stats()
	s.Equal(uint64(3), st.MemoryBytes)
	s.Equal(uint64(3), st.DiskBytes)
	s.Equal(1, st.DiskEntries)
}

func (s *CacheSuite) TestGetReturnsCopy() {
	c := s.newCache(DefaultSettings())
	in := []byte("abc")
	s.Require().NoError(c.Put("key", in, 0))
	in[0] = 'x'

	v, _ := c.Get("key")
	v[1] = 'y'
	again, _ := c.Get("key")
	s.Equal([]byte("abc"), again)
}

func (s *CacheSuite) TestExpiredEntryIsAbsentAfterReopen() {
	settings := Settings{MaxMemoryBytes: 5, DiskPath: s.dir}
	c := New(settings, s.backend, WithClock(s.clk))
	s.Require().NoError(c.Open())

	s.Require().NoError(c.Put("k", []byte("12345"), time.Second))
	v, ok := c.Get("k")
	s.True(ok)
	s.Equal([]byte("12345"), v)

	s.clk.Advance(2 * time.Second)
	s.Require().NoError(c.Close())

	reopened := s.newCache(settings)
	_, ok = reopened.Get("k")
	s.False(ok)
	s.Equal(0, reopened.Stats().DiskEntries)
}

func (s *CacheSuite) TestProtectionOverridesExpiry() {
	c := s.newCache(s.diskSettings())
	s.Require().NoError(c.Put("k", []byte("12345"), time.Second))
	s.True(c.Protect([]string{"k"}))

	s.clk.Advance(2 * time.Second)
	v, ok := c.Get("k")
	s.True(ok)
	s.Equal([]byte("12345"), v)
	s.True(c.Contains("k"))

	s.True(c.Release([]string{"k"}))
	_, ok = c.Get("k")
	s.False(ok)
	s.False(c.Contains("k"))
}

func (s *CacheSuite) TestProtectedEntrySurvivesReopen() {
	settings := s.diskSettings()
	c := New(settings, s.backend, WithClock(s.clk))
	s.True(c.Protect([]string{"k"}))
	s.Require().NoError(c.Open())
	s.Require().NoError(c.Put("k", []byte("v"), time.Second))
	s.Require().NoError(c.Close())

	s.clk.Advance(time.Minute)
	s.True(c.IsProtected("k"))
	s.Require().NoError(c.Open())
	defer c.Close()
	v, ok := c.Get("k")
	s.True(ok)
	s.Equal([]byte("v"), v)
}

func (s *CacheSuite) TestPrefixProtectionIsNotReleasedByKey() {
	c := s.newCache(s.diskSettings())
	s.True(c.Protect([]string{"pfx::", "pfx::item"}))
	s.Require().NoError(c.Put("pfx::item", []byte("v"), time.Second))

	s.clk.Advance(2 * time.Second)
	s.False(c.Release([]string{"pfx::item"}))
	v, ok := c.Get("pfx::item")
	s.True(ok)
	s.Equal([]byte("v"), v)

	s.True(c.Release([]string{"pfx::"}))
	_, ok = c.Get("pfx::item")
	s.False(ok)
}

func (s *CacheSuite) TestDiskQuotaEvictsLeastRecentlyUsed() {
	const entry = 10
	settings := Settings{DiskPath: s.dir, MaxDiskBytes: 10 * entry, EvictionPolicy: EvictLeastRecentlyUsed}
	c := s.newCache(settings)

	s.True(c.Protect([]string{"pinned"}))
	s.Require().NoError(c.Put("pinned", bytesOf(entry, 'p'), 0))
	for i := 0; i < 9; i++ {
		s.Require().NoError(c.Put(fmt.Sprintf("k%d", i), bytesOf(entry, 'v'), 0))
	}
	st := c.Stats()
	s.Equal(uint64(10*entry), st.DiskBytes)
	s.Equal(10, st.DiskEntries)
	s.Zero(st.Evictions)

	// k1 is now more recent than k0.
	_, ok := c.Get("k0")
	s.True(ok)
	_, ok = c.Get("k1")
	s.True(ok)

	s.Require().NoError(c.Put("k9", bytesOf(entry, 'v'), 0))
	st = c.Stats()
	s.Equal(int64(1), st.Evictions)
	s.Equal(uint64(10*entry), st.DiskBytes)
	s.False(c.Contains("k2"))
	s.True(c.Contains("k0"))
	s.True(c.Contains("pinned"))

	// A value larger than the quota pushes out every unprotected entry,
	// itself included, but never the pinned one.
	s.Require().NoError(c.Put("huge", bytesOf(20*entry, 'h'), 0))
	st = c.Stats()
	s.Equal(1, st.DiskEntries)
	s.True(c.Contains("pinned"))
	s.False(c.Contains("huge"))
}

func (s *CacheSuite) TestProtectedEntriesMayExceedQuota() {
	const entry = 10
	settings := Settings{DiskPath: s.dir, MaxDiskBytes: 5 * entry}
	c := s.newCache(settings)
	s.True(c.Protect([]string{"pin::"}))

	for i := 0; i < 8; i++ {
		s.Require().NoError(c.Put(fmt.Sprintf("pin::%d", i), bytesOf(entry, 'p'), 0))
	}
	s.Equal(uint64(8*entry), c.Stats().DiskBytes)

	s.Require().NoError(c.Put("loose", bytesOf(entry, 'l'), 0))
	s.False(c.Contains("loose"))
	for i := 0; i < 8; i++ {
		s.True(c.Contains(fmt.Sprintf("pin::%d", i)))
	}
}

func (s *CacheSuite) TestMemoryQuotaIsIndependentOfDisk() {
	settings := Settings{MaxMemoryBytes: 10, DiskPath: s.dir, MaxDiskBytes: 100}
	c := s.newCache(settings)

	s.Require().NoError(c.Put("a", bytesOf(6, 'a'), 0))
	s.Require().NoError(c.Put("b", bytesOf(6, 'b'), 0))
	st := c.Stats()
	s.Equal(1, st.MemoryEntries)
	s.Equal(uint64(6), st.MemoryBytes)
	s.Equal(2, st.DiskEntries)

	// a comes back from disk and pushes b out of memory.
	v, ok := c.Get("a")
	s.True(ok)
	s.Equal(bytesOf(6, 'a'), v)
	st = c.Stats()
	s.Equal(1, st.MemoryEntries)
	s.Equal(2, st.DiskEntries)
}

func (s *CacheSuite) TestValueLargerThanMemoryQuotaGoesToDisk() {
	settings := Settings{MaxMemoryBytes: 4, DiskPath: s.dir}
	c := s.newCache(settings)

	s.Require().NoError(c.Put("big", []byte("12345"), 0))
	s.Zero(c.Stats().MemoryEntries)
	v, ok := c.Get("big")
	s.True(ok)
	s.Equal([]byte("12345"), v)
}

func (s *CacheSuite) TestEvictNoneKeepsEverything() {
	settings := Settings{MaxMemoryBytes: 4, MaxDiskBytes: 4, DiskPath: s.dir, EvictionPolicy: EvictNone}
	c := s.newCache(settings)

	for i := 0; i < 4; i++ {
		s.Require().NoError(c.Put(fmt.Sprintf("k%d", i), []byte("12"), 0))
	}
	st := c.Stats()
	s.Equal(4, st.MemoryEntries)
	s.Equal(4, st.DiskEntries)
	s.Zero(st.Evictions)
}

func (s *CacheSuite) TestEvictionSweepPurgesExpired() {
	settings := Settings{MaxMemoryBytes: 10, EvictionPolicy: EvictLeastRecentlyUsed}
	c := s.newCache(settings)

	s.Require().NoError(c.Put("fresh", bytesOf(4, 'f'), 0))
	s.Require().NoError(c.Put("stale", bytesOf(4, 's'), time.Second))
	s.clk.Advance(2 * time.Second)
	s.Require().NoError(c.Put("new", bytesOf(4, 'n'), 0))

	st := c.Stats()
	s.Equal(int64(1), st.Expirations)
	s.Zero(st.Evictions)
	s.True(c.Contains("fresh"))
}

func (s *CacheSuite) TestClear() {
	c := s.newCache(s.diskSettings())
	s.True(c.Protect([]string{"a"}))
	s.Require().NoError(c.Put("a", []byte("1"), 0))
	s.Require().NoError(c.Put("b", []byte("2"), 0))

	s.Require().NoError(c.Clear())
	_, ok := c.Get("a")
	s.False(ok)
	_, ok = c.Get("b")
	s.False(ok)
	s.True(c.IsProtected("a"))
	st := c.Stats()
	s.Zero(st.DiskEntries)
	s.Zero(st.MemoryEntries)

	s.Require().NoError(c.Close())
	s.Require().NoError(c.Open())
	s.Zero(c.Stats().DiskEntries)
}

func (s *CacheSuite) TestOpenIsIdempotent() {
	c := s.newCache(s.diskSettings())
	s.Require().NoError(c.Put("k", []byte("v"), 0))
	s.Require().NoError(c.Open())
	v, ok := c.Get("k")
	s.True(ok)
	s.Equal([]byte("v"), v)
}

func (s *CacheSuite) TestOpenRejectsUnusablePath() {
	file := filepath.Join(s.dir, "file")
	s.Require().NoError(os.WriteFile(file, []byte("x"), 0o600))

	c := New(Settings{DiskPath: filepath.Join(file, "sub")}, s.backend)
	err := c.Open()
	s.Require().Error(err)
	s.True(IsConfigError(err))
	s.ErrorIs(c.Put("k", []byte("v"), 0), ErrNotOpen)

	err = New(Settings{DiskPath: s.dir}, nil).Open()
	s.True(IsConfigError(err))
}

func (s *CacheSuite) TestClosedCacheFailsFast() {
	c := New(s.diskSettings(), s.backend)
	s.ErrorIs(c.Put("k", []byte("v"), 0), ErrNotOpen)
	s.ErrorIs(c.Clear(), ErrNotOpen)
	s.ErrorIs(c.Remove("k"), ErrNotOpen)
	s.ErrorIs(c.RemoveKeysWithPrefix("k"), ErrNotOpen)
	_, ok := c.Get("k")
	s.False(ok)
	s.False(c.Contains("k"))
	s.NoError(c.Close())

	s.True(c.Protect([]string{"k"}))
	s.True(c.IsProtected("k"))
	s.True(c.Release([]string{"k"}))
}

func (s *CacheSuite) TestRemove() {
	c := s.newCache(s.diskSettings())
	s.True(c.Protect([]string{"hrn::layer::"}))
	for _, k := range []string{"hrn::layer::1", "hrn::layer::2", "hrn::other::1"} {
		s.Require().NoError(c.Put(k, []byte(k), 0))
	}

	s.Require().NoError(c.Remove("hrn::other::1"))
	s.False(c.Contains("hrn::other::1"))

	s.Require().NoError(c.RemoveKeysWithPrefix("hrn::layer::"))
	s.False(c.Contains("hrn::layer::1"))
	s.False(c.Contains("hrn::layer::2"))
	st := c.Stats()
	s.Zero(st.DiskEntries)
	s.Zero(st.MemoryEntries)
}

func (s *CacheSuite) TestStorageFaults() {
	faulty := &faultyBackend{Backend: s.backend}
	c := New(Settings{DiskPath: s.dir}, faulty, WithClock(s.clk))
	s.Require().NoError(c.Open())
	defer c.Close()

	s.Require().NoError(c.Put("k", []byte("v"), 0))

	faulty.failPut.Store(true)
	err := c.Put("other", []byte("v"), 0)
	s.Require().Error(err)
	s.True(IsStorageFault(err))
	s.ErrorIs(err, errInjected)
	faulty.failPut.Store(false)

	faulty.failGet.Store(true)
	_, ok := c.Get("k")
	s.False(ok)
	faulty.failGet.Store(false)

	v, ok := c.Get("k")
	s.True(ok)
	s.Equal([]byte("v"), v)

	faulty.failDelete.Store(true)
	s.True(IsStorageFault(c.Remove("k")))
}

func (s *CacheSuite) TestFailedDiskWriteLeavesTiersOnPreviousValue() {
	faulty := &faultyBackend{Backend: s.backend}
	c := New(Settings{MaxMemoryBytes: 4, DiskPath: s.dir}, faulty, WithClock(s.clk))
	s.Require().NoError(c.Open())
	defer c.Close()

	s.Require().NoError(c.Put("k", []byte("v1"), 0))

	faulty.failPut.Store(true)
	s.True(IsStorageFault(c.Put("k", []byte("v2"), 0)))
	faulty.failPut.Store(false)

	v, ok := c.Get("k")
	s.Require().True(ok)
	s.Equal([]byte("v1"), v)

	// push k out of memory so the next read comes from disk
	s.Require().NoError(c.Put("a", []byte("aa"), 0))
	s.Require().NoError(c.Put("b", []byte("bb"), 0))
	v, ok = c.Get("k")
	s.Require().True(ok)
	s.Equal([]byte("v1"), v)

	faulty.failDelete.Store(true)
	s.True(IsStorageFault(c.Remove("k")))
	faulty.failDelete.Store(false)
	v, ok = c.Get("k")
	s.Require().True(ok)
	s.Equal([]byte("v1"), v)
}

func (s *CacheSuite) TestOpenReportsIndexScanFault() {
	faulty := &faultyBackend{Backend: s.backend}
	faulty.failIterate.Store(true)
	c := New(s.diskSettings(), faulty, WithClock(s.clk))

	err := c.Open()
	s.Require().Error(err)
	s.True(IsStorageFault(err))
	s.ErrorIs(err, errInjected)
	s.ErrorIs(c.Put("k", []byte("v"), 0), ErrNotOpen)
}

func (s *CacheSuite) TestProtectedValueLargerThanMemoryQuotaIsKept() {
	c := s.newCache(Settings{MaxMemoryBytes: 5, EvictionPolicy: EvictLeastRecentlyUsed})
	s.Require().NoError(c.Put("other", []byte("12"), 0))
	c.Protect([]string{"k"})

	s.Require().NoError(c.Put("k", []byte("123456"), 0))
	v, ok := c.Get("k")
	s.Require().True(ok)
	s.Equal([]byte("123456"), v)
	s.False(c.Contains("other"))
	s.Equal(uint64(6), c.Stats().MemoryBytes)

	c.Release([]string{"k"})
	s.Require().NoError(c.Put("big", []byte("1234567"), 0))
	s.False(c.Contains("big"))
}

func (s *CacheSuite) TestProtectedDiskPathIsReadOnlyFallback() {
	shipped := filepath.Join(s.dir, "shipped")
	seed := New(Settings{DiskPath: shipped}, s.backend, WithClock(s.clk))
	s.Require().NoError(seed.Open())
	s.Require().NoError(seed.Put("tile", []byte("payload"), time.Second))
	s.Require().NoError(seed.Close())
	s.clk.Advance(time.Hour)

	c := s.newCache(Settings{
		MaxMemoryBytes:    4,
		MaxDiskBytes:      4,
		DiskPath:          filepath.Join(s.dir, "mutable"),
		ProtectedDiskPath: shipped,
		EvictionPolicy:    EvictLeastRecentlyUsed,
	})
	v, ok := c.Get("tile")
	s.Require().True(ok)
	s.Equal([]byte("payload"), v)
	s.True(c.Contains("tile"))

	for i := 0; i < 4; i++ {
		s.Require().NoError(c.Put(fmt.Sprintf("key-%d", i), []byte("1234"), 0))
	}
	s.Require().NoError(c.Remove("tile"))
	s.Require().NoError(c.Clear())
	s.Zero(c.Stats().DiskEntries)

	v, ok = c.Get("tile")
	s.Require().True(ok)
	s.Equal([]byte("payload"), v)
	s.Require().NoError(c.Close())

	store, err := s.backend.OpenReadOnly(shipped)
	s.Require().NoError(err)
	defer store.Close()
	raw, err := store.Get([]byte("tile"))
	s.Require().NoError(err)
	s.NotNil(raw)
}

func (s *CacheSuite) TestMissingProtectedDiskPathFailsOpen() {
	c := New(Settings{
		DiskPath:          s.dir,
		ProtectedDiskPath: filepath.Join(s.dir, "absent"),
	}, s.backend, WithClock(s.clk))

	err := c.Open()
	s.Require().Error(err)
	s.True(IsConfigError(err))
	s.Empty(s.backend.handles)
	s.False(c.Contains("k"))
}

func (s *CacheSuite) TestCorruptRecordIsAMiss() {
	store, err := s.backend.Open(s.dir)
	s.Require().NoError(err)
	s.Require().NoError(store.Put([]byte("bad"), []byte("garbage")))
	s.Require().NoError(store.Put([]byte("good"), encodeRecord([]byte("v"), 0)))
	s.Require().NoError(store.Close())

	c := s.newCache(s.diskSettings())
	_, ok := c.Get("bad")
	s.False(ok)
	v, ok := c.Get("good")
	s.True(ok)
	s.Equal([]byte("v"), v)
	s.Equal(1, c.Stats().DiskEntries)
}

func (s *CacheSuite) TestStats() {
	c := s.newCache(DefaultSettings())
	s.Require().NoError(c.Put("k", []byte("v"), 0))
	c.Get("k")
	c.Get("missing")
	c.Protect([]string{"a", "b"})

	st := c.Stats()
	s.Equal(int64(1), st.Hits)
	s.Equal(int64(1), st.Misses)
	s.InDelta(0.5, st.HitRate(), 1e-9)
	s.Equal(2, st.Protected)
}

func (s *CacheSuite) TestConcurrentAccessRespectsQuota() {
	settings := Settings{MaxMemoryBytes: 256, MaxDiskBytes: 512, DiskPath: s.dir}
	c := s.newCache(settings)
	c.Protect([]string{"w0::"})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("w%d::%d", w, i%20)
				if err := c.Put(key, bytesOf(8, byte('a'+w)), time.Minute); err != nil {
					s.T().Error(err)
					return
				}
				if v, ok := c.Get(key); ok && len(v) != 8 {
					s.T().Errorf("torn value for %s", key)
				}
				c.Contains(fmt.Sprintf("w%d::%d", (w+1)%8, i%20))
				if i%25 == 0 {
					c.Protect([]string{key})
					c.Release([]string{key})
				}
			}
		}(w)
	}
	wg.Wait()

	st := c.Stats()
	s.LessOrEqual(st.MemoryBytes, uint64(256))
	s.LessOrEqual(st.DiskBytes, uint64(512))
	for i := 0; i < 20; i++ {
		s.True(c.Contains(fmt.Sprintf("w0::%d", i)))
	}
}
