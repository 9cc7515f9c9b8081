package capture

import (
	"fmt"

	"memfetch/process"
)

// Manifest formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects what a session captures and how.
type Config struct {
	WaitForFault     bool                          // resume the target until it faults
	SkipMapped       bool                          // skip file-backed regions
	OnlyAddress      *process.ProcessMemoryAddress // capture only the region containing this address
	AvoidMmap        bool                          // never use the mapped fast path
	ManifestToStdout bool                          // write the manifest to Stdout instead of a file
	Format           string                        // FormatText or FormatJSON
	Naming           Naming
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Format: FormatText,
		Naming: DefaultNaming(),
	}
}

// Validate rejects flag combinations that cannot be honoured.
func (c Config) Validate() error {
	if c.SkipMapped && c.OnlyAddress != nil {
		return fmt.Errorf("%w: skipping mapped regions and capturing a single address are mutually exclusive", process.ErrUsage)
	}

	switch c.Format {
	case FormatText, FormatJSON, "":
	default:
		return fmt.Errorf("%w: unknown manifest format %q", process.ErrUsage, c.Format)
	}

	return c.Naming.Validate()
}
