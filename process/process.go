// Package process provides the types shared by the capture engine and its
// platform backends: process identifiers, addresses, wait statuses and the
// error categories a capture can end with.
package process

import "errors"

var (
	// ErrUsage is returned for invalid arguments or flag combinations. Nothing
	// has been attached when it is returned.
	ErrUsage = errors.New("usage error")

	// ErrProcessUnavailable is returned when the target is absent at probe
	// time, exits while attaching or disappears while it is being read.
	ErrProcessUnavailable = errors.New("process unavailable")

	// ErrProcessGone is returned when the target exits or is killed before a
	// fault signal is observed.
	ErrProcessGone = errors.New("process gone before receiving a fault signal")

	// ErrAttach is returned when the trace attachment request is rejected.
	ErrAttach = errors.New("cannot attach")

	// ErrCaptureFailed is returned when an artifact cannot be written. It is
	// fatal to the whole session.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrEmptyResult is returned when no region was captured.
	ErrEmptyResult = errors.New("no matching regions")

	// ErrInterrupted is returned when memfetch itself received a termination
	// signal.
	ErrInterrupted = errors.New("interrupted")
)

// Exit statuses reported by the memfetch command.
const (
	ExitOK          = 0
	ExitRuntime     = 1
	ExitUnavailable = 2
	ExitUsage       = 3
	ExitEmpty       = 4
)

// ExitCode maps an error returned by a capture session to the exit status
// of the command.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrProcessUnavailable), errors.Is(err, ErrProcessGone):
		return ExitUnavailable
	case errors.Is(err, ErrEmptyResult):
		return ExitEmpty
	}
	return ExitRuntime
}
