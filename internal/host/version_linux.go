//go:build linux

package host

import (
	"fmt"

	"golang.org/x/sys/unix"

	"connectivity-listener/internal/watcher"
)

// kernelVersion reads the kernel release, e.g. "6.8.0-45-generic".
func kernelVersion() (watcher.Version, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return watcher.Version{}, fmt.Errorf("host: uname: %w", err)
	}
	return watcher.ParseVersion(unix.ByteSliceToString(u.Release[:]))
}
