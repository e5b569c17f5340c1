package singleinstance

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrAlreadyRunning is returned by AcquireLock when another resident holds it.
var ErrAlreadyRunning = errors.New("another instance is already running")

// DefaultLockPath returns $XDG_RUNTIME_DIR/swiftlingo.lock, falling back to
// the user cache directory.
func DefaultLockPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "swiftlingo.lock")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "swiftlingo", "swiftlingo.lock")
	}
	return filepath.Join(os.TempDir(), "swiftlingo.lock")
}
