package capture

import (
	"context"
	"fmt"
	"io"

	"memfetch/process"
	"memfetch/process/memory_map"
)

// RegionCapture copies the bytes of single regions of a stopped process.
//
// The fast path maps the region from the raw memory source after touching
// every page through the tracer, because pages the kernel has not backed
// yet cannot be mapped. If mapping fails (or is disabled) the region is
// streamed page by page; if a page cannot be streamed the whole region is
// rebuilt word by word with tracer peeks.
type RegionCapture struct {
	tracer   Tracer
	pid      process.ProcessID
	mem      MemorySource
	pageSize int
	cfg      Config
	log      Logger
}

// NewRegionCapture creates a RegionCapture for the process pid.
func NewRegionCapture(tracer Tracer, pid process.ProcessID, mem MemorySource, pageSize int, cfg Config, log Logger) *RegionCapture {
	return &RegionCapture{
		tracer:   tracer,
		pid:      pid,
		mem:      mem,
		pageSize: pageSize,
		cfg:      cfg,
		log:      log,
	}
}

// Filter reports whether region must be skipped, and why. It does no I/O.
func (rc *RegionCapture) Filter(region memory_map.MemoryRegion) (string, bool) {
	if rc.cfg.SkipMapped && region.Mapped() {
		return "mapped from " + region.Path, true
	}
	if only := rc.cfg.OnlyAddress; only != nil && !region.Contains(uint64(*only)) {
		return "does not contain " + only.ToString(), true
	}
	return "", false
}

// Capture writes the bytes of region to sink, starting at the sink's
// current offset. dest names the sink in errors. A returned error is fatal
// to the whole session; the outcome is then Aborted.
//
// The region length must be a multiple of the page size.
func (rc *RegionCapture) Capture(ctx context.Context, region memory_map.MemoryRegion, sink Sink, dest string) (Outcome, error) {
	origin, err := sink.Seek(0, io.SeekCurrent)
	if err != nil {
		err = fmt.Errorf("%w: cannot seek %s: %w", process.ErrCaptureFailed, dest, err)
		return abortedOutcome(err), err
	}

	if !rc.cfg.AvoidMmap {
		written, mapped, err := rc.mappedCopy(region, sink, dest)
		if err != nil {
			return abortedOutcome(err), err
		}
		if mapped {
			return capturedOutcome(MappedCopy, written), nil
		}
	}

	written, complete, err := rc.streamedCopy(ctx, region, sink)
	if err != nil {
		return abortedOutcome(err), err
	}
	if complete {
		return capturedOutcome(StreamedCopy, written), nil
	}

	if _, err := sink.Seek(origin, io.SeekStart); err != nil {
		err = fmt.Errorf("%w: cannot rewind %s: %w", process.ErrCaptureFailed, dest, err)
		return abortedOutcome(err), err
	}

	written, unreadable, err := rc.peekReconstruct(ctx, region, sink, dest)
	if err != nil {
		return abortedOutcome(err), err
	}
	if unreadable > 0 {
		rc.log.Warn("Region ", region.Index, ": ", unreadable, " unreadable words were zero-filled")
	}

	outcome := capturedOutcome(PeekReconstructed, written)
	outcome.UnreadableWords = unreadable
	return outcome, nil
}

// touchPages peeks one word of every page so the kernel backs lazily
// allocated and copy-on-write pages before they are mapped.
func (rc *RegionCapture) touchPages(region memory_map.MemoryRegion) {
	word := make([]byte, process.WordSize)
	pages := process.ProcessMemorySize(region.Size()).Pages(rc.pageSize)

	failed := 0
	for i := 0; i < pages; i++ {
		addr := process.ProcessMemoryAddress(region.Start + uint64(i*rc.pageSize))
		if err := rc.tracer.PeekWord(rc.pid, addr, word); err != nil {
			failed++
		}
	}
	if failed > 0 {
		rc.log.Debugln("Region", region.Index, ":", failed, "of", pages, "pages could not be touched")
	}
}

// mappedCopy reports mapped == false if the region could not be mapped.
func (rc *RegionCapture) mappedCopy(region memory_map.MemoryRegion, sink Sink, dest string) (written int64, mapped bool, err error) {
	rc.touchPages(region)

	data, err := rc.mem.Map(process.ProcessMemoryAddress(region.Start), process.ProcessMemorySize(region.Size()))
	if err != nil {
		rc.log.Debugln("Region", region.Index, ": mmap failed, streaming instead:", err)
		return 0, false, nil
	}
	defer func() {
		if err := rc.mem.Unmap(data); err != nil {
			rc.log.Debugln("Region", region.Index, ": munmap:", err)
		}
	}()

	n, err := sink.Write(data)
	if err != nil || n != len(data) {
		return int64(n), true, shortWrite(dest, n, len(data), err)
	}
	return int64(n), true, nil
}

// streamedCopy reports complete == false on the first short read or short
// write. err is only set when the context is cancelled.
func (rc *RegionCapture) streamedCopy(ctx context.Context, region memory_map.MemoryRegion, sink Sink) (written int64, complete bool, err error) {
	pages := process.ProcessMemorySize(region.Size()).Pages(rc.pageSize)

	offset := int64(region.Start)
	if pos, err := rc.mem.Seek(offset, io.SeekStart); err != nil || pos != offset {
		rc.log.Debugln("Region", region.Index, ": cannot seek memory to", process.ProcessMemoryAddress(region.Start).ToString(), err)
		return 0, false, nil
	}

	buf := make([]byte, rc.pageSize)
	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			return written, false, interruption(ctx)
		}

		if _, err := io.ReadFull(rc.mem, buf); err != nil {
			rc.log.Debugln("Region", region.Index, ": short read at page", i, err)
			return written, false, nil
		}

		n, err := sink.Write(buf)
		written += int64(n)
		if err != nil || n != len(buf) {
			rc.log.Debugln("Region", region.Index, ": short write at page", i, err)
			return written, false, nil
		}
	}

	return written, true, nil
}

// peekReconstruct rebuilds the region one word at a time and writes it a
// page at a time. Words that cannot be peeked are zero-filled and counted.
func (rc *RegionCapture) peekReconstruct(ctx context.Context, region memory_map.MemoryRegion, sink Sink, dest string) (written int64, unreadable int, err error) {
	pages := process.ProcessMemorySize(region.Size()).Pages(rc.pageSize)
	buf := make([]byte, rc.pageSize)

	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			return written, unreadable, interruption(ctx)
		}

		page := region.Start + uint64(i*rc.pageSize)
		for j := 0; j+process.WordSize <= len(buf); j += process.WordSize {
			word := buf[j : j+process.WordSize]
			if err := rc.tracer.PeekWord(rc.pid, process.ProcessMemoryAddress(page+uint64(j)), word); err != nil {
				clear(word)
				unreadable++
			}
		}

		n, err := sink.Write(buf)
		written += int64(n)
		if err != nil || n != len(buf) {
			return written, unreadable, shortWrite(dest, n, len(buf), err)
		}
	}

	return written, unreadable, nil
}

func shortWrite(dest string, n, want int, err error) error {
	if err == nil {
		err = io.ErrShortWrite
	}
	return fmt.Errorf("%w: short write to %s (%d of %d bytes): %w", process.ErrCaptureFailed, dest, n, want, err)
}
