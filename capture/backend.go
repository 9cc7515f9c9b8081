// Package capture attaches to a process, walks its address space and copies
// every region to disk together with a manifest.
package capture

import (
	"io"
	"syscall"

	"memfetch/process"
)

// Tracer is the trace control interface to a target process. All methods
// except Probe and Interrupt must be called from the thread that attached.
type Tracer interface {
	// Probe is a zero-effect liveness check (kill(pid, 0)).
	Probe(pid process.ProcessID) error

	// Attach requests a trace attachment.
	Attach(pid process.ProcessID) error

	// Wait blocks for the next stop or exit notification of pid.
	Wait(pid process.ProcessID) (process.StopStatus, error)

	// Cont resumes pid, delivering sig (0 for none).
	Cont(pid process.ProcessID, sig syscall.Signal) error

	// Detach releases the attachment and resumes pid with sig.
	Detach(pid process.ProcessID, sig syscall.Signal) error

	// PeekWord reads len(word) bytes (one machine word) at addr.
	PeekWord(pid process.ProcessID, addr process.ProcessMemoryAddress, word []byte) error

	// Interrupt stops pid so that a blocked Wait returns. Safe to call from
	// any goroutine.
	Interrupt(pid process.ProcessID) error
}

// MemorySource is a byte-addressable view of the target's address space,
// positioned by virtual address.
type MemorySource interface {
	io.ReadSeeker
	io.Closer

	// Map maps length bytes at addr read-only and private.
	Map(addr process.ProcessMemoryAddress, length process.ProcessMemorySize) ([]byte, error)

	// Unmap releases a mapping returned by Map.
	Unmap(b []byte) error
}

// Target gives access to the inputs of a capture, keyed by pid.
type Target interface {
	// Executable returns the declared executable path of pid.
	Executable(pid process.ProcessID) string

	// Status returns what the OS reports about pid.
	Status(pid process.ProcessID) (process.ProcessInfo, error)

	// OpenMaps opens the textual address-space map of pid.
	OpenMaps(pid process.ProcessID) (io.ReadCloser, error)

	// OpenMemory opens the raw memory source of pid.
	OpenMemory(pid process.ProcessID) (MemorySource, error)

	// PageSize returns the machine page size.
	PageSize() int
}

// Sink receives the bytes of one artifact.
type Sink interface {
	io.WriteSeeker
	io.Closer
}

// Artifacts creates output artifacts by name.
type Artifacts interface {
	// Create creates name exclusively, replacing a stale artifact of the
	// same name.
	Create(name string) (Sink, error)

	// Path returns where name is or would be stored, for messages.
	Path(name string) string
}

// Logger is the logging surface used by the capture engine.
type Logger interface {
	Infoln(args ...interface{})
	Debugln(args ...interface{})
	Warn(args ...interface{})
}
