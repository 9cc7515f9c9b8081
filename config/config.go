// Package config loads the optional memfetch configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"memfetch/capture"
	"memfetch/process"
)

// Config defines all configuration options available to be set through the
// config file. Empty values keep the defaults.
type Config struct {
	// Directory the manifest and region files are written to.
	OutputDir string `yaml:"output-dir,omitempty"`

	// File names of the capture.
	ManifestName string `yaml:"manifest-name,omitempty"`
	MapPrefix    string `yaml:"map-prefix,omitempty"`
	MemPrefix    string `yaml:"mem-prefix,omitempty"`
	Suffix       string `yaml:"suffix,omitempty"`

	// ManifestFormat is "text" or "json".
	ManifestFormat string `yaml:"manifest-format,omitempty"`
}

// Load reads the config file at path. An empty path yields an empty Config.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read config file: %w", process.ErrUsage, err)
	}

	return Parse(data)
}

// Parse decodes a YAML config document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config file: %w", process.ErrUsage, err)
	}
	return &c, nil
}

// Apply copies the options that are set onto cfg.
func (c *Config) Apply(cfg *capture.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.Naming.Manifest, c.ManifestName)
	set(&cfg.Naming.MapPrefix, c.MapPrefix)
	set(&cfg.Naming.MemPrefix, c.MemPrefix)
	set(&cfg.Naming.Suffix, c.Suffix)
	set(&cfg.Format, c.ManifestFormat)
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}
