// Package config reads the process configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/spf13/cast"

	"github.com/leonardcser/tilecache/internal/cache"
)

const (
	EnvSocket     = "TILECACHE_SOCK"
	EnvDir        = "TILECACHE_DIR"
	EnvMaxMemory  = "TILECACHE_MAX_MEMORY"
	EnvMaxDisk    = "TILECACHE_MAX_DISK"
	EnvEviction   = "TILECACHE_EVICTION"
	EnvDefaultTTL = "TILECACHE_DEFAULT_TTL"
	EnvBaseURL    = "TILECACHE_BASE_URL"
	EnvCatalog    = "TILECACHE_CATALOG"
	EnvProtected  = "TILECACHE_PROTECTED_DIR"
)

// Config is everything the binaries need.
type Config struct {
	SocketPath string
	Cache      cache.Settings
	// DefaultTTL applies to data fetched from the platform.
	DefaultTTL time.Duration
	// BaseURL is the root of the platform blob API.
	BaseURL string
	// Catalog is the HRN the data tools read from.
	Catalog string
}

// FromEnv builds a Config from os.Getenv.
func FromEnv() (Config, error) { return Load(os.Getenv) }

// Load builds a Config from getenv, filling in defaults for unset variables.
func Load(getenv func(string) string) (Config, error) {
	dir := defaultString(getenv(EnvDir), defaultDir())
	cfg := Config{
		SocketPath: defaultString(getenv(EnvSocket), filepath.Join(dir, "cache.sock")),
		Cache:      cache.DefaultSettings(),
		DefaultTTL: 15 * time.Minute,
		BaseURL:    getenv(EnvBaseURL),
		Catalog:    getenv(EnvCatalog),
	}
	cfg.Cache.DiskPath = dir
	cfg.Cache.ProtectedDiskPath = getenv(EnvProtected)

	var err error
	if v := getenv(EnvMaxMemory); v != "" {
		if cfg.Cache.MaxMemoryBytes, err = cast.ToUint64E(v); err != nil {
			return Config{}, invalid(err, EnvMaxMemory, v)
		}
	}
	if v := getenv(EnvMaxDisk); v != "" {
		if cfg.Cache.MaxDiskBytes, err = cast.ToUint64E(v); err != nil {
			return Config{}, invalid(err, EnvMaxDisk, v)
		}
	}
	if v := getenv(EnvEviction); v != "" {
		if cfg.Cache.EvictionPolicy, err = cache.ParseEvictionPolicy(v); err != nil {
			return Config{}, invalid(err, EnvEviction, v)
		}
	}
	if v := getenv(EnvDefaultTTL); v != "" {
		if cfg.DefaultTTL, err = cast.ToDurationE(v); err != nil {
			return Config{}, invalid(err, EnvDefaultTTL, v)
		}
	}
	return cfg, nil
}

func invalid(err error, name, value string) error {
	return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "config: %s=%q", name, value)
}

func defaultDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "tilecache")
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
