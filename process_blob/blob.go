// Package process_blob provides an in-memory stand-in for a traced
// process: a block of bytes at a base address that can be read through the
// same paths memfetch uses on a live target (seek and read, mmap, word
// peeks), with switches to make each path fail.
package process_blob

import (
	"errors"
	"fmt"
	"io"

	"memfetch/process"
)

var (
	ErrOutOfBounds = errors.New("address out of bounds")
	ErrMapDisabled = errors.New("mapping disabled")
	ErrUnreadable  = errors.New("page not readable")
)

type ProcessBlob struct {
	baseaddress process.ProcessMemoryAddress
	data        []byte
	pos         int64

	// FailMap makes every Map call fail.
	FailMap bool

	// ShortReadAt, when non-zero, makes sequential reads stop at this
	// address.
	ShortReadAt process.ProcessMemoryAddress

	// Unreadable lists word addresses that PeekWord refuses to read.
	Unreadable map[process.ProcessMemoryAddress]bool

	// Peeks counts PeekWord calls; Maps counts successful Map calls.
	Peeks int
	Maps  int
}

func NewProcessBlob(baseAddress process.ProcessMemoryAddress, data []byte) *ProcessBlob {
	return &ProcessBlob{
		baseaddress: baseAddress,
		data:        data,
	}
}

func (p *ProcessBlob) Data() []byte {
	return p.data
}

// Base returns the address of the first byte of the blob
func (p *ProcessBlob) Base() process.ProcessMemoryAddress {
	return p.baseaddress
}

// ReadMemory returns size bytes at addr
func (p *ProcessBlob) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if addr < p.baseaddress || uint64(addr)+uint64(size) > uint64(p.baseaddress)+uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: 0x%x+%d", ErrOutOfBounds, uint64(addr), uint64(size))
	}
	offset := addr - p.baseaddress
	return p.data[offset : uint64(offset)+uint64(size)], nil
}

// Seek positions the blob by virtual address.
func (p *ProcessBlob) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = p.pos + offset
	case io.SeekEnd:
		pos = int64(p.baseaddress) + int64(len(p.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	p.pos = pos
	return pos, nil
}

// Read reads from the current position like /proc/[pid]/mem does.
func (p *ProcessBlob) Read(b []byte) (int, error) {
	addr := process.ProcessMemoryAddress(p.pos)
	end := p.baseaddress + process.ProcessMemoryAddress(len(p.data))
	if addr < p.baseaddress || addr >= end {
		return 0, io.EOF
	}

	n := len(b)
	if avail := int(end - addr); n > avail {
		n = avail
	}
	if p.ShortReadAt != 0 && addr <= p.ShortReadAt && p.ShortReadAt < addr+process.ProcessMemoryAddress(n) {
		n = int(p.ShortReadAt - addr)
		if n == 0 {
			return 0, fmt.Errorf("%w: 0x%x", ErrUnreadable, uint64(addr))
		}
	}

	offset := addr - p.baseaddress
	copy(b, p.data[offset:uint64(offset)+uint64(n)])
	p.pos += int64(n)
	return n, nil
}

// Map returns a private copy of length bytes at addr.
func (p *ProcessBlob) Map(addr process.ProcessMemoryAddress, length process.ProcessMemorySize) ([]byte, error) {
	if p.FailMap {
		return nil, ErrMapDisabled
	}
	data, err := p.ReadMemory(addr, length)
	if err != nil {
		return nil, err
	}
	p.Maps++
	return append([]byte(nil), data...), nil
}

// Unmap releases a mapping returned by Map
func (p *ProcessBlob) Unmap([]byte) error {
	return nil
}

// Close is a no-op
func (p *ProcessBlob) Close() error {
	return nil
}

// PeekWord copies len(word) bytes at addr into word, like PTRACE_PEEKDATA.
func (p *ProcessBlob) PeekWord(pid process.ProcessID, addr process.ProcessMemoryAddress, word []byte) error {
	p.Peeks++
	if p.Unreadable[addr] {
		return fmt.Errorf("%w: 0x%x", ErrUnreadable, uint64(addr))
	}
	data, err := p.ReadMemory(addr, process.ProcessMemorySize(len(word)))
	if err != nil {
		return err
	}
	copy(word, data)
	return nil
}
