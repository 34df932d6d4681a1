package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/tilecache/internal/cache"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(map[string]string{EnvDir: "/var/cache/tc"}))
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/tc", cfg.Cache.DiskPath)
	assert.Equal(t, filepath.Join("/var/cache/tc", "cache.sock"), cfg.SocketPath)
	assert.Equal(t, cache.DefaultMaxMemoryBytes, cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, cache.DefaultMaxDiskBytes, cfg.Cache.MaxDiskBytes)
	assert.Equal(t, cache.EvictLeastRecentlyUsed, cfg.Cache.EvictionPolicy)
	assert.Empty(t, cfg.Cache.ProtectedDiskPath)
	assert.Equal(t, 15*time.Minute, cfg.DefaultTTL)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		EnvDir:        "/tmp/tc",
		EnvSocket:     "/run/tc.sock",
		EnvMaxMemory:  "4096",
		EnvMaxDisk:    "1048576",
		EnvEviction:   "none",
		EnvDefaultTTL: "90s",
		EnvBaseURL:    "https://blob.example.com",
		EnvCatalog:    "hrn:here:data::olp-here:rib-2",
		EnvProtected:  "/opt/tiles",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/run/tc.sock", cfg.SocketPath)
	assert.Equal(t, uint64(4096), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, uint64(1048576), cfg.Cache.MaxDiskBytes)
	assert.Equal(t, cache.EvictNone, cfg.Cache.EvictionPolicy)
	assert.Equal(t, 90*time.Second, cfg.DefaultTTL)
	assert.Equal(t, "https://blob.example.com", cfg.BaseURL)
	assert.Equal(t, "hrn:here:data::olp-here:rib-2", cfg.Catalog)
	assert.Equal(t, "/opt/tiles", cfg.Cache.ProtectedDiskPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, value := range map[string]string{
		EnvMaxMemory:  "lots",
		EnvMaxDisk:    "-1",
		EnvEviction:   "random",
		EnvDefaultTTL: "soon",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env(map[string]string{name: value}))
			require.Error(t, err)
			assert.True(t, cache.IsConfigError(err))
		})
	}
}
