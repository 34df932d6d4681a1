package cache

import (
	"errors"
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"
)

var (
	// ErrNotOpen is returned by operations that need an opened cache.
	ErrNotOpen = platformerrors.New(platformerrors.CodeConflict, "cache: not open")
	// ErrNotFound is returned by KV implementations on a miss.
	ErrNotFound = platformerrors.New(platformerrors.CodeNotFound, "cache: not found")

	errValueTooLarge = errors.New("value does not fit a record")
)

// configError reports an unusable configuration, surfaced only from Open.
func configError(err error, format string, args ...any) error {
	if err == nil {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, format, args...)
	}
	return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, format, args...)
}

// storageFault reports an I/O failure of the persistent store.
func storageFault(err error, op, key string) error {
	return platformerrors.Wrap(err, platformerrors.CodeDatabase, fmt.Sprintf("cache: %s %q", op, key))
}

// IsConfigError reports whether err was caused by an unusable configuration.
func IsConfigError(err error) bool {
	return platformerrors.GetCode(err) == platformerrors.CodeInvalidConfig
}

// IsStorageFault reports whether err was caused by the persistent store.
func IsStorageFault(err error) bool {
	return platformerrors.GetCode(err) == platformerrors.CodeDatabase
}
