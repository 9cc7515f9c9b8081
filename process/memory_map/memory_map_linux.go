//go:build linux

package memory_map

import (
	"fmt"
	"io"
	"os"
)

// OpenLinux opens /proc/[pid]/maps for reading
func OpenLinux(pid int) (io.ReadCloser, error) {
	file, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	return file, nil
}
