package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltFile is the name of the database file created inside a disk path.
const BoltFile = "cache.bbolt"

// BoltOptions configures a BoltBackend.
type BoltOptions struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
	// NoSync trades crash durability for write speed. Tests only.
	NoSync bool
}

// BoltBackend opens bbolt stores. Handles are shared per path and reference
// counted, so two caches of one process on the same directory use one *bolt.DB
// instead of blocking on the file lock.
type BoltBackend struct {
	opts BoltOptions

	mu      sync.Mutex
	handles map[string]*boltHandle
}

type boltHandle struct {
	db       *bolt.DB
	refs     int
	readOnly bool
}

var errReadOnly = errors.New("store is read-only")

// NewBoltBackend creates a backend. It is safe for concurrent use.
func NewBoltBackend(opts BoltOptions) *BoltBackend {
	if opts.Bucket == "" {
		opts.Bucket = "cache"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 1 * time.Second
	}
	return &BoltBackend{opts: opts, handles: make(map[string]*boltHandle)}
}

// Open opens or creates the store in directory path.
func (b *BoltBackend) Open(path string) (Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	file, err := filepath.Abs(filepath.Join(path, BoltFile))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.handles[file]; ok {
		if h.readOnly {
			return nil, fmt.Errorf("%s is already open read-only", file)
		}
		h.refs++
		return b.store(file, h.db, false), nil
	}
	db, err := bolt.Open(file, 0o600, &bolt.Options{Timeout: b.opts.Timeout, NoSync: b.opts.NoSync})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(b.opts.Bucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	b.handles[file] = &boltHandle{db: db, refs: 1}
	return b.store(file, db, false), nil
}

// OpenReadOnly opens the store in directory path without creating anything.
// A handle this backend already holds for the path is shared.
func (b *BoltBackend) OpenReadOnly(path string) (Store, error) {
	file, err := filepath.Abs(filepath.Join(path, BoltFile))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.handles[file]; ok {
		h.refs++
		return b.store(file, h.db, true), nil
	}
	if _, err := os.Stat(file); err != nil {
		return nil, err
	}
	db, err := bolt.Open(file, 0o600, &bolt.Options{Timeout: b.opts.Timeout, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	b.handles[file] = &boltHandle{db: db, refs: 1, readOnly: true}
	return b.store(file, db, true), nil
}

func (b *BoltBackend) store(file string, db *bolt.DB, readOnly bool) *boltStore {
	return &boltStore{backend: b, file: file, db: db, bucket: []byte(b.opts.Bucket), readOnly: readOnly}
}

func (b *BoltBackend) release(file string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[file]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(b.handles, file)
	return h.db.Close()
}

type boltStore struct {
	backend *BoltBackend
	file    string
	db      *bolt.DB
	bucket  []byte
	// readOnly stores refuse Put and Delete.
	readOnly bool

	closeOnce sync.Once
	closeErr  error
}

func (s *boltStore) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// a read-only file may have been written with another bucket
		if bkt := tx.Bucket(s.bucket); bkt != nil {
			if v := bkt.Get(key); v != nil {
				out = append([]byte(nil), v...)
			}
		}
		return nil
	})
	return out, err
}

func (s *boltStore) Put(key, value []byte) error {
	if s.readOnly {
		return errReadOnly
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, value)
	})
}

func (s *boltStore) Delete(key []byte) error {
	if s.readOnly {
		return errReadOnly
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(key)
	})
}

func (s *boltStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.backend.release(s.file) })
	return s.closeErr
}
