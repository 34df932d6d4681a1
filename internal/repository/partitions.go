// Package repository holds the read repositories that sit on top of the
// cache: partition metadata and data blobs of a catalog, keyed by the shapes
// in package keys.
package repository

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/leonardcser/tilecache/internal/cache"
	"github.com/leonardcser/tilecache/internal/keys"
)

// Partition is the metadata record of one partition of a layer.
type Partition struct {
	Partition  string `json:"partition"`
	DataHandle string `json:"dataHandle"`
	Version    *int64 `json:"version,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
	DataSize   int64  `json:"dataSize,omitempty"`
}

// PartitionsCache stores partition metadata of one catalog.
type PartitionsCache struct {
	kv  cache.KV
	hrn string
	ttl time.Duration
	log *zap.Logger
}

func NewPartitionsCache(kv cache.KV, hrn string, ttl time.Duration, log *zap.Logger) *PartitionsCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PartitionsCache{kv: kv, hrn: hrn, ttl: ttl, log: log}
}

// PutPartitions stores every partition under its own key. When complete is
// set the list is the whole layer and its partition ids are stored as well,
// so that GetPartitions can answer without naming ids.
func (p *PartitionsCache) PutPartitions(layer string, version *int64, parts []Partition, complete bool) error {
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		b, err := json.Marshal(part)
		if err != nil {
			return err
		}
		if err := p.kv.Put(keys.Partition(p.hrn, layer, part.Partition, version), b, p.ttl); err != nil {
			return err
		}
		ids = append(ids, part.Partition)
	}
	if !complete {
		return nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return p.kv.Put(keys.Partitions(p.hrn, layer, version), b, p.ttl)
}

// GetPartition returns one cached partition.
func (p *PartitionsCache) GetPartition(layer, id string, version *int64) (Partition, bool) {
	var part Partition
	key := keys.Partition(p.hrn, layer, id, version)
	b, err := p.kv.Get(key)
	if err != nil {
		return part, false
	}
	if err := json.Unmarshal(b, &part); err != nil {
		p.log.Warn("dropping undecodable partition", zap.String("key", key), zap.Error(err))
		_ = p.kv.Delete(key)
		return part, false
	}
	return part, true
}

// GetPartitions returns the named partitions, or the whole layer when ids is
// empty. It reports a miss unless every partition is cached.
func (p *PartitionsCache) GetPartitions(layer string, version *int64, ids []string) ([]Partition, bool) {
	if len(ids) == 0 {
		b, err := p.kv.Get(keys.Partitions(p.hrn, layer, version))
		if err != nil {
			return nil, false
		}
		if err := json.Unmarshal(b, &ids); err != nil {
			return nil, false
		}
	}
	out := make([]Partition, 0, len(ids))
	for _, id := range ids {
		part, ok := p.GetPartition(layer, id, version)
		if !ok {
			return nil, false
		}
		out = append(out, part)
	}
	return out, true
}

// ClearPartitions removes the named partitions of one version.
func (p *PartitionsCache) ClearPartitions(layer string, version *int64, ids []string) error {
	for _, id := range ids {
		if err := p.kv.Delete(keys.Partition(p.hrn, layer, id, version)); err != nil {
			return err
		}
	}
	return p.kv.Delete(keys.Partitions(p.hrn, layer, version))
}

// ClearLayer removes everything cached for layer, metadata and data alike.
func (p *PartitionsCache) ClearLayer(layer string) error {
	return p.kv.RemoveKeysWithPrefix(keys.LayerPrefix(p.hrn, layer))
}

// PartitionsRepository reads partition metadata through a PartitionsCache,
// fetching the whole layer from the platform metadata API on a miss.
type PartitionsRepository struct {
	cache   *PartitionsCache
	fetcher *Fetcher
	baseURL string
}

func NewPartitionsRepository(pc *PartitionsCache, fetcher *Fetcher, baseURL string) *PartitionsRepository {
	return &PartitionsRepository{cache: pc, fetcher: fetcher, baseURL: strings.TrimRight(baseURL, "/")}
}

// partitionsPage is the body of the layer partitions endpoint.
type partitionsPage struct {
	Partitions []Partition `json:"partitions"`
}

// GetPartitions returns the named partitions, or all of the layer when ids
// is empty. Ids unknown to the platform are left out of the result.
func (r *PartitionsRepository) GetPartitions(ctx context.Context, layer string, version *int64, ids []string) ([]Partition, error) {
	if parts, ok := r.cache.GetPartitions(layer, version, ids); ok {
		return parts, nil
	}
	if r.baseURL == "" {
		return nil, cache.ErrNotFound
	}

	body, err := r.fetcher.Fetch(ctx, r.partitionsURL(layer, version))
	if err != nil {
		return nil, err
	}
	var page partitionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, platformerrors.Wrapf(err, platformerrors.CodeSchemaFailed, "decode partitions of layer %q", layer)
	}
	if err := r.cache.PutPartitions(layer, version, page.Partitions, true); err != nil {
		r.cache.log.Warn("cache write failed", zap.String("layer", layer), zap.Error(err))
	}
	if len(ids) == 0 {
		return page.Partitions, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]Partition, 0, len(ids))
	for _, p := range page.Partitions {
		if _, ok := want[p.Partition]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ClearPartitions drops the named partitions, or the whole layer including
// its data when ids is empty.
func (r *PartitionsRepository) ClearPartitions(layer string, version *int64, ids []string) error {
	if len(ids) == 0 {
		return r.cache.ClearLayer(layer)
	}
	return r.cache.ClearPartitions(layer, version, ids)
}

func (r *PartitionsRepository) partitionsURL(layer string, version *int64) string {
	u := r.baseURL + "/catalogs/" + url.PathEscape(r.cache.hrn) + "/layers/" + url.PathEscape(layer) + "/partitions"
	if version != nil {
		u += "?version=" + strconv.FormatInt(*version, 10)
	}
	return u
}
