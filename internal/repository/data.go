package repository

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leonardcser/tilecache/internal/cache"
	"github.com/leonardcser/tilecache/internal/keys"
)

// DataRepository reads data blobs through the cache, fetching misses from
// the platform blob API.
type DataRepository struct {
	kv      cache.KV
	fetcher *Fetcher
	hrn     string
	baseURL string
	ttl     time.Duration
	log     *zap.Logger
}

func NewDataRepository(kv cache.KV, fetcher *Fetcher, hrn, baseURL string, ttl time.Duration, log *zap.Logger) *DataRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataRepository{
		kv:      kv,
		fetcher: fetcher,
		hrn:     hrn,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		log:     log,
	}
}

// GetData returns the blob behind handle, from the cache when present.
func (d *DataRepository) GetData(ctx context.Context, layer, handle string) ([]byte, error) {
	key := keys.DataHandle(d.hrn, layer, handle)
	if v, err := d.kv.Get(key); err == nil {
		return v, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		d.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if d.baseURL == "" {
		return nil, cache.ErrNotFound
	}

	v, err := d.fetcher.Fetch(ctx, d.blobURL(layer, handle))
	if err != nil {
		return nil, err
	}
	if err := d.kv.Put(key, v, d.ttl); err != nil {
		d.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// PutData stores a blob fetched elsewhere.
func (d *DataRepository) PutData(layer, handle string, value []byte) error {
	return d.kv.Put(keys.DataHandle(d.hrn, layer, handle), value, d.ttl)
}

// IsCached reports whether the blob behind handle is cached.
func (d *DataRepository) IsCached(layer, handle string) bool {
	ok, err := d.kv.Contains(keys.DataHandle(d.hrn, layer, handle))
	return err == nil && ok
}

// ProtectLayer pins everything cached for layer against expiry and eviction.
func (d *DataRepository) ProtectLayer(layer string) error {
	_, err := d.kv.Protect([]string{keys.LayerPrefix(d.hrn, layer)})
	return err
}

// ReleaseLayer undoes ProtectLayer.
func (d *DataRepository) ReleaseLayer(layer string) (bool, error) {
	return d.kv.Release([]string{keys.LayerPrefix(d.hrn, layer)})
}

// ProtectHandles pins individual blobs.
func (d *DataRepository) ProtectHandles(layer string, handles []string) error {
	_, err := d.kv.Protect(d.handleKeys(layer, handles))
	return err
}

// ReleaseHandles undoes ProtectHandles.
func (d *DataRepository) ReleaseHandles(layer string, handles []string) (bool, error) {
	return d.kv.Release(d.handleKeys(layer, handles))
}

func (d *DataRepository) handleKeys(layer string, handles []string) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		out = append(out, keys.DataHandle(d.hrn, layer, h))
	}
	return out
}

func (d *DataRepository) blobURL(layer, handle string) string {
	return d.baseURL + "/catalogs/" + url.PathEscape(d.hrn) + "/layers/" + url.PathEscape(layer) + "/data/" + url.PathEscape(handle)
}
