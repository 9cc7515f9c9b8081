package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"memfetch/process"
	"memfetch/process/memory_map"
)

// Session captures one process. Tracer, Target, Artifacts and Log are
// required; Guard, Stdout and Now are optional.
type Session struct {
	Tracer    Tracer
	Target    Target
	Artifacts Artifacts
	Guard     *Guard
	Log       Logger
	Stdout    io.Writer        // manifest destination with ManifestToStdout, os.Stdout if nil
	Now       func() time.Time // capture timestamp, time.Now if nil
}

type phase int

const (
	phaseAwaitingFault phase = iota
	phaseReady
	phaseDone
)

// Run attaches to pid, optionally waits for it to fault, and captures its
// regions as cfg selects. The attachment is released exactly once before
// Run returns, whatever the outcome. The returned manifest may be partial
// when err is not nil.
func (s *Session) Run(ctx context.Context, pid process.ProcessID, cfg Config) (m *Manifest, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// ptrace requests are only accepted from the thread that attached.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx = s.Guard.Context(ctx)

	ctrl := NewAttachController(s.Tracer, s.Target, s.Guard, s.Log)
	proc, err := ctrl.Attach(pid)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := ctrl.Detach(); derr != nil {
			if err == nil {
				err = derr
			} else {
				s.Log.Warn(derr)
			}
		}
	}()

	next := phaseReady
	if cfg.WaitForFault {
		next = phaseAwaitingFault
	}

	for next != phaseDone {
		if ctx.Err() != nil {
			return m, interruption(ctx)
		}

		switch next {
		case phaseAwaitingFault:
			if _, err := ctrl.WaitForFault(ctx); err != nil {
				return nil, err
			}
			next = phaseReady
		case phaseReady:
			m, err = s.capture(ctx, proc, cfg)
			next = phaseDone
		}
	}

	return m, err
}

func (s *Session) capture(ctx context.Context, proc *TracedProcess, cfg Config) (m *Manifest, err error) {
	pid := proc.PID

	maps, err := s.Target.OpenMaps(pid)
	if err != nil {
		return nil, s.readError(pid, "cannot open address-space map", err)
	}
	defer maps.Close()

	mem, err := s.Target.OpenMemory(pid)
	if err != nil {
		return nil, s.readError(pid, "cannot open memory", err)
	}
	defer mem.Close()

	m = &Manifest{
		PID:        pid,
		Executable: s.Target.Executable(pid),
		Date:       s.now(),
	}

	mw, closeManifest, err := s.openManifest(m, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closeManifest(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := mw.Begin(); err != nil {
		return m, err
	}

	err = s.captureRegions(ctx, pid, mem, maps, mw, cfg)
	if err == nil && m.Captured() == 0 {
		err = fmt.Errorf("%w: no matching entries found in the address-space map of %d", process.ErrEmptyResult, pid)
	}

	if ferr := mw.Finish(err); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return m, err
	}

	s.Log.Infoln("Done:", m.Captured(), "captured,", m.Skipped(), "skipped")
	return m, nil
}

func (s *Session) captureRegions(ctx context.Context, pid process.ProcessID, mem MemorySource, maps io.Reader, mw *ManifestWriter, cfg Config) error {
	rc := NewRegionCapture(s.Tracer, pid, mem, s.Target.PageSize(), cfg, s.Log)

	scanner := memory_map.NewRegionScanner(maps)
	scanner.OnSkip = func(line string, err error) {
		s.Log.Warn("Parse error in address-space map of ", pid, " (", err, "): ", strings.TrimSpace(line))
	}

	for scanner.Next() {
		if ctx.Err() != nil {
			return interruption(ctx)
		}

		entry, err := s.captureRegion(ctx, rc, scanner.Region(), cfg)
		if aerr := mw.Append(entry); aerr != nil && err == nil {
			err = aerr
		}
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return s.readError(pid, "reading address-space map", err)
	}
	return nil
}

func (s *Session) captureRegion(ctx context.Context, rc *RegionCapture, region memory_map.MemoryRegion, cfg Config) (Entry, error) {
	start := process.ProcessMemoryAddress(region.Start).ToString()

	if reason, skip := rc.Filter(region); skip {
		s.Log.Debugln("Skipping", region.Kind(), "at", start, "(", region.Size(), "bytes):", reason)
		return Entry{Region: region, Outcome: skippedOutcome(reason)}, nil
	}

	name := cfg.Naming.RegionFile(region)
	dest := s.Artifacts.Path(name)

	sink, err := s.Artifacts.Create(name)
	if err != nil {
		return Entry{Region: region, File: name, Outcome: abortedOutcome(err)}, err
	}

	s.Log.Debugln("Writing", region.Kind(), "at", start, "(", region.Size(), "bytes) to", dest)

	outcome, err := rc.Capture(ctx, region, sink, dest)
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: cannot close %s: %w", process.ErrCaptureFailed, dest, cerr)
		outcome = abortedOutcome(err)
	}
	if err == nil {
		s.Log.Debugln("Region", region.Index, outcome)
	}

	return Entry{Region: region, File: name, Outcome: outcome}, err
}

// openManifest returns the manifest writer and a function that closes its
// destination.
func (s *Session) openManifest(m *Manifest, cfg Config) (*ManifestWriter, func() error, error) {
	if cfg.ManifestToStdout {
		stdout := s.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		s.Log.Infoln("Writing master information to standard output")
		return NewManifestWriter(m, stdout, "standard output", cfg.Format, false), func() error { return nil }, nil
	}

	name := cfg.Naming.Manifest
	dest := s.Artifacts.Path(name)

	sink, err := s.Artifacts.Create(name)
	if err != nil {
		return nil, nil, err
	}

	s.Log.Infoln("Writing master information to", dest)

	closeManifest := func() error {
		if err := sink.Close(); err != nil {
			return fmt.Errorf("%w: cannot close manifest %s: %w", process.ErrCaptureFailed, dest, err)
		}
		return nil
	}
	return NewManifestWriter(m, sink, dest, cfg.Format, true), closeManifest, nil
}

// readError classifies a failure to read the target's inputs: if the
// process is gone it is unavailable, otherwise it is a runtime failure.
func (s *Session) readError(pid process.ProcessID, what string, err error) error {
	if perr := s.Tracer.Probe(pid); perr != nil {
		return fmt.Errorf("%w: %s of %d: %w", process.ErrProcessUnavailable, what, pid, err)
	}
	return fmt.Errorf("%s of %d: %w", what, pid, err)
}

func (s *Session) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
