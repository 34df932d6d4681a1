package cache

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// headerSize is the record prefix: expiresAt (int64) followed by size (uint32).
const headerSize = 8 + 4

type diskMeta struct {
	size      uint64
	expiresAt int64
}

// diskTier adds expiry, size accounting and recency on top of a Store. The
// store has no notion of recency, so it is tracked by an in-memory index
// rebuilt with one scan when the tier is opened.
type diskTier struct {
	store Store
	index *simplelru.LRU[string, diskMeta]
	total uint64
	max   uint64
}

// openDiskTier wraps store and scans it once to rebuild the index. Records
// that fail to decode are deleted. It returns the keys it purged.
func openDiskTier(store Store, max uint64) (*diskTier, []string, error) {
	index, err := simplelru.NewLRU[string, diskMeta](math.MaxInt, nil)
	if err != nil {
		return nil, nil, err
	}
	d := &diskTier{store: store, index: index, max: max}

	var corrupt []string
	err = store.Iterate(nil, func(k, v []byte) error {
		expiresAt, payload, ok := decodeRecord(v)
		if !ok {
			corrupt = append(corrupt, string(k))
			return nil
		}
		d.track(string(k), diskMeta{size: uint64(len(payload)), expiresAt: expiresAt})
		return nil
	})
	if err != nil {
		return nil, nil, storageFault(err, "iterate", "")
	}
	for _, key := range corrupt {
		if err := store.Delete([]byte(key)); err != nil {
			return nil, nil, storageFault(err, "delete", key)
		}
	}
	return d, corrupt, nil
}

func encodeRecord(value []byte, expiresAt int64) []byte {
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	binary.BigEndian.PutUint32(buf[8:headerSize], uint32(len(value)))
	copy(buf[headerSize:], value)
	return buf
}

func decodeRecord(v []byte) (int64, []byte, bool) {
	if len(v) < headerSize {
		return 0, nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(v[:8]))
	size := binary.BigEndian.Uint32(v[8:headerSize])
	payload := v[headerSize:]
	if uint64(size) != uint64(len(payload)) {
		return 0, nil, false
	}
	return expiresAt, payload, true
}

func (d *diskTier) put(key string, value []byte, expiresAt int64) error {
	if uint64(len(value)) > math.MaxUint32 {
		return storageFault(errValueTooLarge, "put", key)
	}
	if err := d.store.Put([]byte(key), encodeRecord(value, expiresAt)); err != nil {
		return storageFault(err, "put", key)
	}
	d.track(key, diskMeta{size: uint64(len(value)), expiresAt: expiresAt})
	return nil
}

// get reads key from the store. Expired records not kept by keep, records
// missing from the store and corrupt records are purged and reported absent.
func (d *diskTier) get(key string, now int64, keep func(string) bool) ([]byte, int64, bool, error) {
	meta, ok := d.index.Peek(key)
	if !ok {
		return nil, 0, false, nil
	}
	if expired(meta.expiresAt, now) && !keep(key) {
		return nil, 0, false, d.remove(key)
	}
	raw, err := d.store.Get([]byte(key))
	if err != nil {
		return nil, 0, false, storageFault(err, "get", key)
	}
	expiresAt, payload, ok := decodeRecord(raw)
	if raw == nil || !ok {
		return nil, 0, false, d.remove(key)
	}
	d.index.Get(key)
	return payload, expiresAt, true, nil
}

// contains answers from the index alone.
func (d *diskTier) contains(key string, now int64, keep func(string) bool) (bool, error) {
	meta, ok := d.index.Peek(key)
	if !ok {
		return false, nil
	}
	if expired(meta.expiresAt, now) && !keep(key) {
		return false, d.remove(key)
	}
	return true, nil
}

func (d *diskTier) remove(key string) error {
	if err := d.store.Delete([]byte(key)); err != nil {
		return storageFault(err, "delete", key)
	}
	d.untrack(key)
	return nil
}

func (d *diskTier) removePrefix(prefix string) (int, error) {
	var matched []string
	for _, key := range d.index.Keys() {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	for _, key := range matched {
		if err := d.remove(key); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// clear deletes every record of the store, including ones the index missed.
func (d *diskTier) clear() error {
	var all [][]byte
	if err := d.store.Iterate(nil, func(k, _ []byte) error {
		all = append(all, append([]byte(nil), k...))
		return nil
	}); err != nil {
		return storageFault(err, "iterate", "")
	}
	for _, k := range all {
		if err := d.store.Delete(k); err != nil {
			return storageFault(err, "delete", string(k))
		}
	}
	d.index.Purge()
	d.total = 0
	return nil
}

// touch refreshes the recency of key without reading the store.
func (d *diskTier) touch(key string) { d.index.Get(key) }

func (d *diskTier) len() int { return d.index.Len() }

func (d *diskTier) close() error { return d.store.Close() }

func (d *diskTier) track(key string, meta diskMeta) {
	if old, ok := d.index.Peek(key); ok {
		d.total -= old.size
	}
	d.index.Add(key, meta)
	d.total += meta.size
}

func (d *diskTier) untrack(key string) {
	if old, ok := d.index.Peek(key); ok {
		d.total -= old.size
		d.index.Remove(key)
	}
}

// tier implementation used by the evictor.

func (d *diskTier) used() uint64  { return d.total }
func (d *diskTier) limit() uint64 { return d.max }

// victims returns unkept keys, oldest first, whose sizes add up to need.
func (d *diskTier) victims(keep func(string) bool, need uint64) []string {
	var out []string
	var freed uint64
	for _, key := range d.index.Keys() {
		if freed >= need {
			break
		}
		if keep(key) {
			continue
		}
		meta, _ := d.index.Peek(key)
		out = append(out, key)
		freed += meta.size
	}
	return out
}

func (d *diskTier) purgeExpired(now int64, keep func(string) bool) (int, error) {
	var stale []string
	for _, key := range d.index.Keys() {
		meta, _ := d.index.Peek(key)
		if expired(meta.expiresAt, now) && !keep(key) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		if err := d.remove(key); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func (d *diskTier) evict(key string) error { return d.remove(key) }
