package cache

// readOnlyTier serves a store opened read-only, typically prefetched data
// shipped alongside the application. Records use the disk tier layout but
// never expire, and nothing is ever written to or evicted from it.
type readOnlyTier struct {
	store Store
}

// get reports corrupt records as absent.
func (r *readOnlyTier) get(key string) ([]byte, bool, error) {
	raw, err := r.store.Get([]byte(key))
	if err != nil {
		return nil, false, storageFault(err, "get", key)
	}
	if raw == nil {
		return nil, false, nil
	}
	_, payload, ok := decodeRecord(raw)
	return payload, ok, nil
}

func (r *readOnlyTier) close() error { return r.store.Close() }
