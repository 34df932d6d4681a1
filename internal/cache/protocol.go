package cache

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// Each request is answered by exactly one response on the same connection.

const (
	OpGet          = "get"
	OpPut          = "put"
	OpDelete       = "delete"
	OpContains     = "contains"
	OpProtect      = "protect"
	OpRelease      = "release"
	OpRemovePrefix = "remove_prefix"
	OpClear        = "clear"
	OpStats        = "stats"
)

type Request struct {
	Op    string   `json:"op"`
	Key   string   `json:"key,omitempty"`
	Keys  []string `json:"keys,omitempty"`
	Value []byte   `json:"value,omitempty"`
	// TTL is in nanoseconds; zero or less never expires.
	TTL int64 `json:"ttl_ns,omitempty"`
}

type Response struct {
	OK    bool      `json:"ok"`
	Value []byte    `json:"value,omitempty"`
	Found bool      `json:"found,omitempty"`
	Stats *Snapshot `json:"stats,omitempty"`
	Code  string    `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`
}
