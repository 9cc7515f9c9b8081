package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"memfetch/process"
	"memfetch/process/memory_map"
)

// Naming is the file-naming convention of a capture.
type Naming struct {
	Manifest  string
	MapPrefix string
	MemPrefix string
	Suffix    string
}

// DefaultNaming returns mfetch.lst, map-NNN.bin and mem-NNN.bin.
func DefaultNaming() Naming {
	return Naming{
		Manifest:  "mfetch.lst",
		MapPrefix: "map-",
		MemPrefix: "mem-",
		Suffix:    ".bin",
	}
}

// RegionFile returns the artifact name of region.
func (n Naming) RegionFile(region memory_map.MemoryRegion) string {
	prefix := n.MemPrefix
	if region.Mapped() {
		prefix = n.MapPrefix
	}
	return fmt.Sprintf("%s%03d%s", prefix, region.Index, n.Suffix)
}

// Validate checks that the names are plain file names and that mapped and
// anonymous artifacts cannot collide.
func (n Naming) Validate() error {
	if n.Manifest == "" {
		return fmt.Errorf("%w: empty manifest name", process.ErrUsage)
	}
	for _, name := range []string{n.Manifest, n.MapPrefix, n.MemPrefix, n.Suffix} {
		if strings.ContainsRune(name, filepath.Separator) {
			return fmt.Errorf("%w: %q must not contain a path separator", process.ErrUsage, name)
		}
	}
	if n.MapPrefix == n.MemPrefix {
		return fmt.Errorf("%w: map and mem prefixes must differ", process.ErrUsage)
	}
	return nil
}

// DirArtifacts creates artifacts in a directory.
type DirArtifacts struct {
	Dir string
}

// Path returns the location of name inside the directory.
func (d DirArtifacts) Path(name string) string {
	if d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// Create removes a stale artifact named name and creates a fresh one with
// O_EXCL, so data from a previous run is never mixed in.
func (d DirArtifacts) Create(name string) (Sink, error) {
	path := d.Path(name)

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: cannot replace %s: %w", process.ErrCaptureFailed, path, err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open output file %s: %w", process.ErrCaptureFailed, path, err)
	}

	return file, nil
}
