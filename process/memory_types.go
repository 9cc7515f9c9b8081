package process

import (
	"fmt"
	"unsafe"
)

// WordSize is the size of one PTRACE_PEEKDATA transfer.
const WordSize = int(unsafe.Sizeof(uintptr(0)))

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%08x", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint64

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint64(pms))
}

// Pages returns how many whole pages of pageSize fit in pms.
func (pms ProcessMemorySize) Pages(pageSize int) int {
	return int(uint64(pms) / uint64(pageSize))
}
