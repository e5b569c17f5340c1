//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package capture

import (
	"os"

	"golang.org/x/sys/unix"
)

// pollableFile wraps fd in non-blocking mode so the runtime poller owns it
// and Close interrupts a pending Read.
func pollableFile(fd int, name string) *os.File {
	// A descriptor left blocking still reads; only the timeout path degrades.
	_ = unix.SetNonblock(fd, true)
	return os.NewFile(uintptr(fd), name)
}
