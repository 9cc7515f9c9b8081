//go:build linux

package process_linux

import (
	"errors"
	"syscall"
	"time"

	"memfetch/capture"
	"memfetch/process"

	sys "golang.org/x/sys/unix"
)

// LinuxTracer implements capture.Tracer with ptrace(2).
type LinuxTracer struct {
	procfs *ProcFS
}

var _ capture.Tracer = (*LinuxTracer)(nil)

// NewTracer creates a LinuxTracer. procfs is used to inspect the tracee
// after detach.
func NewTracer(procfs *ProcFS) *LinuxTracer {
	if procfs == nil {
		procfs = &ProcFS{}
	}
	return &LinuxTracer{procfs: procfs}
}

// Probe sends signal 0 to pid
func (t *LinuxTracer) Probe(pid process.ProcessID) error {
	return sys.Kill(int(pid), 0)
}

// Attach executes the sys.PtraceAttach call.
func (t *LinuxTracer) Attach(pid process.ProcessID) error {
	return sys.PtraceAttach(int(pid))
}

// Wait waits for pid with wait4. Threads that are not thread group leaders
// are not waited for with __WALL, so waiting on one fails with ECHILD.
func (t *LinuxTracer) Wait(pid process.ProcessID) (process.StopStatus, error) {
	var ws sys.WaitStatus
	for {
		wpid, err := sys.Wait4(int(pid), &ws, 0, nil)
		if errors.Is(err, sys.EINTR) {
			continue
		}
		if err != nil {
			return process.StopStatus{}, err
		}
		if wpid <= 0 {
			return process.StopStatus{}, sys.ECHILD
		}
		return decodeWaitStatus(ws), nil
	}
}

func decodeWaitStatus(ws sys.WaitStatus) process.StopStatus {
	switch {
	case ws.Exited():
		return process.ExitedStatus(ws.ExitStatus())
	case ws.Signaled():
		return process.KilledStatus(ws.Signal())
	case ws.Stopped():
		return process.StoppedStatus(ws.StopSignal())
	}
	return process.StopStatus{}
}

// Cont executes ptrace PTRACE_CONT
func (t *LinuxTracer) Cont(pid process.ProcessID, sig syscall.Signal) error {
	return sys.PtraceCont(int(pid), int(sig))
}

// Detach calls ptrace(PTRACE_DETACH) delivering sig.
func (t *LinuxTracer) Detach(pid process.ProcessID, sig syscall.Signal) error {
	_, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_DETACH, uintptr(pid), 1, uintptr(sig), 0, 0)
	if errno != 0 {
		return errno
	}
	if sig != 0 {
		return nil
	}

	// The tracee sometimes ends up in a group-stop shortly after detach, wait
	// a little and wake it up if that happened.
	time.Sleep(50 * time.Millisecond)
	if info, err := t.procfs.Status(pid); err == nil && info.State.JobStopped() {
		_ = sys.Kill(int(pid), sys.SIGCONT)
	}
	return nil
}

// PeekWord executes ptrace PTRACE_PEEKDATA for one word.
func (t *LinuxTracer) PeekWord(pid process.ProcessID, addr process.ProcessMemoryAddress, word []byte) error {
	n, err := sys.PtracePeekData(int(pid), uintptr(addr), word)
	if err != nil {
		return err
	}
	if n != len(word) {
		return sys.EIO
	}
	return nil
}

// Interrupt sends SIGSTOP to pid
func (t *LinuxTracer) Interrupt(pid process.ProcessID) error {
	return sys.Kill(int(pid), sys.SIGSTOP)
}
