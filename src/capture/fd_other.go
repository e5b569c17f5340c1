//go:build !(linux || darwin || freebsd || openbsd || netbsd || dragonfly)

package capture

import "os"

func pollableFile(fd int, name string) *os.File {
	return os.NewFile(uintptr(fd), name)
}
