// Package diskspace reports free space so conversions can refuse to start
// on a nearly-full filesystem.
package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Free returns the bytes available to unprivileged writers on the
// filesystem containing path.
func Free(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
