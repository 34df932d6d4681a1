package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errInjected = errors.New("injected fault")

// faultyBackend wraps a backend and fails store calls on demand.
type faultyBackend struct {
	Backend
	failPut     atomic.Bool
	failGet     atomic.Bool
	failDelete  atomic.Bool
	failIterate atomic.Bool
}

func (b *faultyBackend) Open(path string) (Store, error) {
	s, err := b.Backend.Open(path)
	if err != nil {
		return nil, err
	}
	return &faultyStore{Store: s, b: b}, nil
}

type faultyStore struct {
	Store
	b *faultyBackend
}

func (s *faultyStore) Get(key []byte) ([]byte, error) {
	if s.b.failGet.Load() {
		return nil, errInjected
	}
	return s.Store.Get(key)
}

func (s *faultyStore) Put(key, value []byte) error {
	if s.b.failPut.Load() {
		return errInjected
	}
	return s.Store.Put(key, value)
}

func (s *faultyStore) Delete(key []byte) error {
	if s.b.failDelete.Load() {
		return errInjected
	}
	return s.Store.Delete(key)
}

func (s *faultyStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if s.b.failIterate.Load() {
		return errInjected
	}
	return s.Store.Iterate(prefix, fn)
}

func keepNone(string) bool { return false }

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
