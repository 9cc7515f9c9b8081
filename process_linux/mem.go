//go:build linux

package process_linux

import (
	"os"

	"memfetch/capture"
	"memfetch/process"

	sys "golang.org/x/sys/unix"
)

// MemFile is /proc/[pid]/mem: file offsets are virtual addresses of the
// tracee.
type MemFile struct {
	*os.File
}

var _ capture.MemorySource = (*MemFile)(nil)

// Map maps length bytes at addr with PROT_READ and MAP_PRIVATE. Kernels
// that refuse to mmap /proc/[pid]/mem make this fail, and the caller falls
// back to reading.
func (m *MemFile) Map(addr process.ProcessMemoryAddress, length process.ProcessMemorySize) ([]byte, error) {
	return sys.Mmap(int(m.Fd()), int64(addr), int(length), sys.PROT_READ, sys.MAP_PRIVATE)
}

// Unmap releases a mapping returned by Map
func (m *MemFile) Unmap(b []byte) error {
	return sys.Munmap(b)
}
