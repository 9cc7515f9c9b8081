package process

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("%w: bad flag", ErrUsage), ExitUsage},
		{fmt.Errorf("%w: no such process", ErrProcessUnavailable), ExitUnavailable},
		{fmt.Errorf("%w: exited", ErrProcessGone), ExitUnavailable},
		{fmt.Errorf("%w: nothing", ErrEmptyResult), ExitEmpty},
		{fmt.Errorf("%w: short write", ErrCaptureFailed), ExitRuntime},
		{fmt.Errorf("%w: EPERM", ErrAttach), ExitRuntime},
		{ErrInterrupted, ExitRuntime},
		{errors.New("other"), ExitRuntime},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSignalSets(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGSEGV, syscall.SIGILL, syscall.SIGPIPE, syscall.SIGFPE, syscall.SIGBUS} {
		if !IsFaultSignal(sig) || IsTraceNoise(sig) {
			t.Errorf("%v should be a fault signal", sig)
		}
	}
	for _, sig := range []syscall.Signal{syscall.SIGTRAP, syscall.SIGSTOP} {
		if !IsTraceNoise(sig) || IsFaultSignal(sig) {
			t.Errorf("%v should be noise", sig)
		}
	}
	if IsFaultSignal(syscall.SIGUSR1) || IsTraceNoise(syscall.SIGUSR1) {
		t.Error("SIGUSR1 misclassified")
	}
}

func TestStopStatus(t *testing.T) {
	if s := StoppedStatus(syscall.SIGSEGV); !s.Stopped || s.Exited || s.Signal != syscall.SIGSEGV {
		t.Errorf("stopped: %+v", s)
	}
	if s := ExitedStatus(3); !s.Exited || s.ExitCode != 3 {
		t.Errorf("exited: %+v", s)
	}
	if s := KilledStatus(syscall.SIGKILL); !s.Signaled || s.Stopped {
		t.Errorf("killed: %+v", s)
	}
}

func TestMemorySizePages(t *testing.T) {
	if n := ProcessMemorySize(0x3000).Pages(0x1000); n != 3 {
		t.Errorf("pages %d", n)
	}
	if s := ProcessMemoryAddress(0x1000).ToString(); s != "0x00001000" {
		t.Errorf("address %q", s)
	}
}
