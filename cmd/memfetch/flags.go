//go:build linux

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"memfetch/capture"
	"memfetch/config"
	"memfetch/process"
)

type options struct {
	waitFault  bool
	skipMapped bool
	stdout     bool
	noMmap     bool
	only       *process.ProcessMemoryAddress
	format     string
	outputDir  string
	configFile string
	verbose    bool
}

func (o *options) register(flags *pflag.FlagSet) {
	flags.BoolVarP(&o.waitFault, "wait-fault", "s", false, "Wait for SIGSEGV, SIGBUS, SIGILL, SIGPIPE or SIGFPE before capturing.")
	flags.BoolVarP(&o.skipMapped, "skip-mapped", "a", false, "Skip regions mapped from files.")
	flags.BoolVarP(&o.stdout, "stdout", "w", false, "Write the manifest to standard output.")
	flags.BoolVarP(&o.noMmap, "no-mmap", "m", false, "Never map memory, read it instead.")
	flags.VarP(&addressValue{addr: &o.only}, "only", "S", "Capture only the region containing this hex address.")
	flags.StringVar(&o.format, "format", capture.FormatText, `Manifest format, "text" or "json".`)
	flags.StringVar(&o.outputDir, "output-dir", ".", "Directory the capture is written to.")
	flags.StringVar(&o.configFile, "config", "", "YAML configuration file.")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Log every region.")
}

// captureConfig layers the flags over the config file over the defaults.
func (o *options) captureConfig(flags *pflag.FlagSet, file *config.Config) capture.Config {
	cfg := capture.DefaultConfig()
	file.Apply(&cfg)

	if flags.Changed("format") {
		cfg.Format = o.format
	}

	cfg.WaitForFault = o.waitFault
	cfg.SkipMapped = o.skipMapped
	cfg.ManifestToStdout = o.stdout
	cfg.AvoidMmap = o.noMmap
	cfg.OnlyAddress = o.only
	return cfg
}

// addressValue is a pflag.Value holding a hexadecimal address.
type addressValue struct {
	addr **process.ProcessMemoryAddress
}

func (v *addressValue) String() string {
	if v.addr == nil || *v.addr == nil {
		return ""
	}
	return (*v.addr).ToString()
}

func (v *addressValue) Set(s string) error {
	addr, err := parseAddress(s)
	if err != nil {
		return err
	}
	*v.addr = &addr
	return nil
}

func (v *addressValue) Type() string {
	return "hexaddr"
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil || digits == "" {
		return 0, fmt.Errorf("invalid hex address %q", s)
	}
	return process.ProcessMemoryAddress(n), nil
}
