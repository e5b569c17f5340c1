//go:build !(linux || darwin || freebsd || openbsd || netbsd || dragonfly)

package singleinstance

// Lock is a no-op where flock is unavailable; the TCP port alone guards
// single-instance ownership there.
type Lock struct{}

func AcquireLock(string) (*Lock, error) { return &Lock{}, nil }

func (l *Lock) Release() error { return nil }
