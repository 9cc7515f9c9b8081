package memory_map

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Region kinds, as used in artifact names and the manifest.
const (
	KindMapped    = "map"
	KindAnonymous = "mem"
)

var (
	ErrNoRange    = errors.New("no start-end range")
	ErrEmptyRange = errors.New("end address not above start address")
)

// MemoryRegion represents one line of a process's address-space map
type MemoryRegion struct {
	Index int    // Position among the successfully parsed lines, from 0
	Start uint64 // The starting address of the memory region
	End   uint64 // First address past the region
	Perms string // Permissions (e.g., "r-xp"), empty if the line had none
	Path  string // Backing file, empty for anonymous memory
	Line  string // The map line without its backing path
}

// Size returns the length of the region in bytes
func (r MemoryRegion) Size() uint64 {
	return r.End - r.Start
}

// Mapped reports whether the region is backed by a file
func (r MemoryRegion) Mapped() bool {
	return r.Path != ""
}

// Kind returns KindMapped or KindAnonymous
func (r MemoryRegion) Kind() string {
	if r.Mapped() {
		return KindMapped
	}
	return KindAnonymous
}

// Contains reports whether addr falls within [Start, End)
func (r MemoryRegion) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// String returns a string representation of the memory region
func (r MemoryRegion) String() string {
	return fmt.Sprintf("[%03d] %s 0x%08x-0x%08x (%d bytes)", r.Index, r.Kind(), r.Start, r.End, r.Size())
}

// ParseLine parses a single map line such as
//
//	7f1c2a000000-7f1c2a021000 rw-p 00000000 00:00 0
//	00400000-0040b000 r-xp 00000000 08:01 1234 /usr/bin/cat
//
// The backing path is everything from the first '/' of the line. Index is
// left at zero.
func ParseLine(line string) (MemoryRegion, error) {
	line = strings.TrimRight(line, "\r\n")

	var region MemoryRegion
	rest := line
	if i := strings.IndexByte(line, '/'); i >= 0 {
		region.Path = line[i:]
		rest = strings.TrimRight(line[:i], " \t")
	}

	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return MemoryRegion{}, ErrNoRange
	}

	// Parse address range (e.g., "00400000-0040b000")
	addrRange := strings.SplitN(fields[0], "-", 2)
	if len(addrRange) != 2 {
		return MemoryRegion{}, ErrNoRange
	}

	start, err := parseHex(addrRange[0])
	if err != nil {
		return MemoryRegion{}, fmt.Errorf("start address: %w", err)
	}

	end, err := parseHex(addrRange[1])
	if err != nil {
		return MemoryRegion{}, fmt.Errorf("end address: %w", err)
	}

	if end <= start {
		return MemoryRegion{}, ErrEmptyRange
	}

	region.Start = start
	region.End = end
	region.Line = rest
	if len(fields) > 1 {
		region.Perms = fields[1]
	}

	return region, nil
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// RegionScanner reads a map source lazily, one region per Next call.
// Lines that fail to parse are handed to OnSkip and skipped; they do not
// consume an index.
type RegionScanner struct {
	// OnSkip, if set, is called for every line that could not be parsed
	OnSkip func(line string, err error)

	scanner *bufio.Scanner
	next    int
	region  MemoryRegion
	err     error
}

// NewRegionScanner creates a RegionScanner reading from r
func NewRegionScanner(r io.Reader) *RegionScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &RegionScanner{scanner: scanner}
}

// Next advances to the next region. It returns false at the end of the
// source or on a read error, which Err then reports.
func (s *RegionScanner) Next() bool {
	if s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		region, err := ParseLine(line)
		if err != nil {
			if s.OnSkip != nil {
				s.OnSkip(line, err)
			}
			continue
		}

		region.Index = s.next
		s.next++
		s.region = region
		return true
	}

	s.err = s.scanner.Err()
	return false
}

// Region returns the region produced by the last successful Next
func (s *RegionScanner) Region() MemoryRegion {
	return s.region
}

// Err returns the first read error of the underlying source, if any
func (s *RegionScanner) Err() error {
	return s.err
}

// Count returns how many regions have been produced so far
func (s *RegionScanner) Count() int {
	return s.next
}
