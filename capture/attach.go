package capture

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"memfetch/process"
)

// AttachState is the state of the trace attachment to a process.
type AttachState int

const (
	Detached AttachState = iota
	Attached
	Degraded // attached to a secondary thread, no stop event consumed
)

func (s AttachState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	case Degraded:
		return "degraded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TracedProcess is a process under a trace attachment. It is only mutated
// by its AttachController.
type TracedProcess struct {
	PID        process.ProcessID
	State      AttachState
	LastSignal syscall.Signal // re-delivered on resume and detach
}

// AttachController owns the trace attachment to one process.
type AttachController struct {
	tracer Tracer
	target Target
	guard  *Guard
	log    Logger

	proc *TracedProcess
}

// NewAttachController creates a controller. target and guard may be nil.
func NewAttachController(tracer Tracer, target Target, guard *Guard, log Logger) *AttachController {
	return &AttachController{
		tracer: tracer,
		target: target,
		guard:  guard,
		log:    log,
	}
}

// Process returns the traced process, nil before Attach.
func (c *AttachController) Process() *TracedProcess {
	return c.proc
}

// Attach checks that pid is alive, attaches to it and waits for the stop
// that confirms the attachment. A pid that cannot be waited for but is
// still alive is a thread of another process; it is accepted in the
// Degraded state.
func (c *AttachController) Attach(pid process.ProcessID) (*TracedProcess, error) {
	if c.proc != nil && c.proc.State != Detached {
		return nil, fmt.Errorf("%w: already attached to %d", process.ErrAttach, c.proc.PID)
	}

	if err := c.tracer.Probe(pid); err != nil {
		return nil, fmt.Errorf("%w: process %d does not exist or is not accessible: %w", process.ErrProcessUnavailable, pid, err)
	}

	if err := c.tracer.Attach(pid); err != nil {
		return nil, fmt.Errorf("%w: process %d (already traced?): %w", process.ErrAttach, pid, err)
	}

	proc := &TracedProcess{PID: pid, State: Attached}

	status, err := c.tracer.Wait(pid)
	if err == nil && status.Stopped {
		c.proc = proc
		c.log.Infoln("Attached to PID", pid)
		return proc, nil
	}

	if errors.Is(err, syscall.ECHILD) && c.tracer.Probe(pid) == nil {
		proc.State = Degraded
		c.proc = proc
		c.warnThread(pid)
		return proc, nil
	}

	if err == nil {
		err = errors.New(status.String())
	}
	return nil, fmt.Errorf("%w: process %d gone during attach: %w", process.ErrProcessUnavailable, pid, err)
}

func (c *AttachController) warnThread(pid process.ProcessID) {
	if c.target != nil {
		if info, err := c.target.Status(pid); err == nil && info.IsThread() {
			c.log.Warn("PID ", pid, " is a thread of process ", info.Tgid, ", attached without a stop event (use --no-mmap if the capture hangs)")
			return
		}
	}
	c.log.Warn("PID ", pid, " is likely a thread, attached without a stop event (use --no-mmap if the capture hangs)")
}

// WaitForFault resumes the process until it stops with SIGSEGV, SIGILL,
// SIGPIPE, SIGFPE or SIGBUS, and returns that signal. The process is left
// stopped. Trace stops are swallowed, other signals are passed on to the
// process. If the process exits first the error wraps process.ErrProcessGone.
func (c *AttachController) WaitForFault(ctx context.Context) (syscall.Signal, error) {
	proc := c.proc
	if proc == nil || proc.State == Detached {
		return 0, fmt.Errorf("%w: not attached", process.ErrAttach)
	}
	if proc.State == Degraded {
		return 0, fmt.Errorf("%w: process %d is a thread, waiting for a fault signal is not supported for threads", process.ErrAttach, proc.PID)
	}

	c.log.Infoln("Waiting for fault signal (SIGSEGV, SIGBUS, SIGILL, SIGPIPE or SIGFPE)...")

	interrupt := func() { _ = c.tracer.Interrupt(proc.PID) }

	for {
		if !c.guard.arm(interrupt) || ctx.Err() != nil {
			c.guard.disarm()
			return 0, interruption(ctx)
		}

		status, err := c.resume(proc)
		c.guard.disarm()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", process.ErrProcessGone, err)
		}

		switch {
		case status.Exited, status.Signaled:
			return 0, fmt.Errorf("%w: process %s", process.ErrProcessGone, status)
		case !status.Stopped:
			return 0, fmt.Errorf("%w: process disappeared", process.ErrProcessGone)
		}

		sig := status.Signal
		c.log.Debugln("Process received signal", int(sig), sig)

		if process.IsTraceNoise(sig) {
			proc.LastSignal = 0
			continue
		}

		proc.LastSignal = sig
		if process.IsFaultSignal(sig) {
			c.log.Infoln("Process received", sig, "- let's have a look")
			return sig, nil
		}
	}
}

func (c *AttachController) resume(proc *TracedProcess) (process.StopStatus, error) {
	if err := c.tracer.Cont(proc.PID, proc.LastSignal); err != nil {
		return process.StopStatus{}, err
	}
	return c.tracer.Wait(proc.PID)
}

// Detach releases the attachment, re-delivering the last signal. Only the
// first call has an effect.
func (c *AttachController) Detach() error {
	proc := c.proc
	if proc == nil || proc.State == Detached {
		return nil
	}

	c.guard.BeginShutdown()

	sig := proc.LastSignal
	err := c.tracer.Detach(proc.PID, sig)
	proc.State = Detached
	proc.LastSignal = 0

	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			c.log.Debugln("Process", proc.PID, "already gone at detach")
			return nil
		}
		return fmt.Errorf("detach from %d: %w", proc.PID, err)
	}

	c.log.Debugln("Detached from PID", proc.PID, "signal", int(sig))
	return nil
}

func interruption(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return process.ErrInterrupted
	}
	if errors.Is(cause, process.ErrInterrupted) {
		return cause
	}
	return fmt.Errorf("%w: %w", process.ErrInterrupted, cause)
}
