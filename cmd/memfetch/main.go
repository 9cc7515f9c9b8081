//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"memfetch/capture"
	"memfetch/config"
	"memfetch/process"
	"memfetch/process_linux"
)

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "memfetch:", err)
	}
	os.Exit(process.ExitCode(err))
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCommand := &cobra.Command{
		Use:   "memfetch [flags] PID",
		Short: "Dumps the memory of a running process.",
		Long: `Attaches to a running process, copies every region of its address space
to a file of its own and writes a manifest describing them.

Regions backed by a file are written to map-NNN.bin, anonymous regions to
mem-NNN.bin, and the manifest to mfetch.lst. With --wait-fault the process
is resumed until it receives SIGSEGV, SIGBUS, SIGILL, SIGPIPE or SIGFPE and
captured at that point.`,
		Args:          pidArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, _ := strconv.Atoi(args[0])
			return run(cmd, &opts, process.ProcessID(pid))
		},
	}
	rootCommand.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", process.ErrUsage, err)
	})

	opts.register(rootCommand.Flags())
	return rootCommand
}

func pidArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one PID, got %d arguments", process.ErrUsage, len(args))
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return fmt.Errorf("%w: invalid PID %q", process.ErrUsage, args[0])
	}
	return nil
}

func run(cmd *cobra.Command, opts *options, pid process.ProcessID) error {
	file, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	cfg := opts.captureConfig(cmd.Flags(), file)
	if err := cfg.Validate(); err != nil {
		return err
	}

	outputDir := file.OutputDir
	if cmd.Flags().Changed("output-dir") || outputDir == "" {
		outputDir = opts.outputDir
	}

	guard := capture.NewGuard(os.Exit)
	defer guard.Close()

	procfs := &process_linux.ProcFS{}
	session := &capture.Session{
		Tracer:    process_linux.NewTracer(procfs),
		Target:    procfs,
		Artifacts: capture.DirArtifacts{Dir: outputDir},
		Guard:     guard,
		Log:       newLogger(pid, cfg.ManifestToStdout, opts.verbose),
		Stdout:    cmd.OutOrStdout(),
	}

	_, err = session.Run(context.Background(), pid, cfg)
	return err
}
