package capture

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"memfetch/process"
)

func newTestGuard(t *testing.T) (*Guard, chan os.Signal, chan int) {
	signals := make(chan os.Signal)
	exits := make(chan int, 1)
	g := newGuard(signals, func(code int) { exits <- code })
	t.Cleanup(g.Close)
	return g, signals, exits
}

func TestGuardFirstSignalCancels(t *testing.T) {
	g, signals, exits := newTestGuard(t)
	ctx := g.Context(context.Background())

	hooked := make(chan struct{})
	if !g.arm(func() { close(hooked) }) {
		t.Fatal("arm failed before any signal")
	}

	signals <- syscall.SIGINT

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled")
	}
	<-hooked

	if !errors.Is(context.Cause(ctx), process.ErrInterrupted) {
		t.Errorf("cause %v", context.Cause(ctx))
	}
	if g.arm(func() {}) {
		t.Error("arm succeeded after a signal")
	}

	select {
	case code := <-exits:
		t.Fatalf("exit(%d) on the first signal", code)
	default:
	}
}

func TestGuardSecondSignalExits(t *testing.T) {
	g, signals, exits := newTestGuard(t)
	g.Context(context.Background())

	signals <- syscall.SIGTERM
	signals <- syscall.SIGTERM

	select {
	case code := <-exits:
		if code != process.ExitRuntime {
			t.Errorf("exit code %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second signal did not exit")
	}
}

func TestGuardSignalDuringShutdown(t *testing.T) {
	g, signals, exits := newTestGuard(t)
	ctx := g.Context(context.Background())

	g.BeginShutdown()
	signals <- syscall.SIGHUP

	select {
	case code := <-exits:
		if code != process.ExitRuntime {
			t.Errorf("exit code %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal during shutdown did not exit")
	}
	if ctx.Err() != nil {
		t.Error("shutdown signal cancelled the session again")
	}
}

func TestGuardSignalBeforeContext(t *testing.T) {
	g, _, _ := newTestGuard(t)
	g.handle(syscall.SIGQUIT)

	ctx := g.Context(context.Background())
	if !errors.Is(context.Cause(ctx), process.ErrInterrupted) {
		t.Fatalf("context not cancelled: %v", context.Cause(ctx))
	}
}

func TestNilGuard(t *testing.T) {
	var g *Guard

	ctx := context.Background()
	if g.Context(ctx) != ctx {
		t.Error("nil guard wrapped the context")
	}
	if !g.arm(func() {}) {
		t.Error("nil guard refused to arm")
	}
	g.disarm()
	g.BeginShutdown()
	g.Close()
}
