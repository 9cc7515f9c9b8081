package process

import (
	"fmt"
	"syscall"
)

// StopStatus is a decoded wait4 notification for a traced process.
type StopStatus struct {
	Exited   bool
	ExitCode int
	Signaled bool // killed by Signal
	Stopped  bool // stopped with Signal
	Signal   syscall.Signal
}

// ExitedStatus returns the status of a process that exited with code.
func ExitedStatus(code int) StopStatus {
	return StopStatus{Exited: true, ExitCode: code}
}

// KilledStatus returns the status of a process terminated by sig.
func KilledStatus(sig syscall.Signal) StopStatus {
	return StopStatus{Signaled: true, Signal: sig}
}

// StoppedStatus returns the status of a process stopped by sig.
func StoppedStatus(sig syscall.Signal) StopStatus {
	return StopStatus{Stopped: true, Signal: sig}
}

func (s StopStatus) String() string {
	switch {
	case s.Exited:
		return fmt.Sprintf("exited with code %d", s.ExitCode)
	case s.Signaled:
		return fmt.Sprintf("killed with signal %d (%v)", int(s.Signal), s.Signal)
	case s.Stopped:
		return fmt.Sprintf("stopped with signal %d (%v)", int(s.Signal), s.Signal)
	}
	return "unknown status"
}

// faultSignals are the stops wait-for-fault mode captures on.
var faultSignals = map[syscall.Signal]bool{
	syscall.SIGSEGV: true,
	syscall.SIGILL:  true,
	syscall.SIGPIPE: true,
	syscall.SIGFPE:  true,
	syscall.SIGBUS:  true,
}

// IsFaultSignal reports whether sig is one of SIGSEGV, SIGILL, SIGPIPE,
// SIGFPE or SIGBUS.
func IsFaultSignal(sig syscall.Signal) bool {
	return faultSignals[sig]
}

// IsTraceNoise reports stop signals caused by tracing itself. They must not
// be re-delivered to the tracee.
func IsTraceNoise(sig syscall.Signal) bool {
	return sig == syscall.SIGTRAP || sig == syscall.SIGSTOP
}
