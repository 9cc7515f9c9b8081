package capture

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"memfetch/process"
)

// TerminationSignals are the signals that make memfetch shut down.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGHUP,
	syscall.SIGPIPE,
	syscall.SIGTERM,
}

// Guard turns termination signals into a cancelled session context. The
// signal goroutine never touches the trace attachment: the session notices
// the cancellation and detaches on its own thread. A signal that arrives
// once shutdown has begun calls exit immediately.
//
// A nil *Guard is valid and never fires.
type Guard struct {
	signals chan os.Signal
	exit    func(int)
	stop    func()
	quit    chan struct{}
	done    chan struct{}

	shutdown atomic.Bool

	mu     sync.Mutex
	cause  error
	cancel context.CancelCauseFunc
	hook   func()
}

// NewGuard subscribes to TerminationSignals. exit is called with
// process.ExitRuntime on a signal received during shutdown.
func NewGuard(exit func(int)) *Guard {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, TerminationSignals...)
	g := newGuard(signals, exit)
	g.stop = func() { signal.Stop(signals) }
	return g
}

func newGuard(signals chan os.Signal, exit func(int)) *Guard {
	g := &Guard{
		signals: signals,
		exit:    exit,
		stop:    func() {},
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Guard) loop() {
	defer close(g.done)
	for {
		select {
		case sig := <-g.signals:
			if !g.handle(sig) {
				return
			}
		case <-g.quit:
			return
		}
	}
}

// handle reports whether the loop should keep running.
func (g *Guard) handle(sig os.Signal) bool {
	if g.shutdown.Swap(true) {
		g.exit(process.ExitRuntime)
		return false
	}

	cause := fmt.Errorf("%w: exiting on signal %v", process.ErrInterrupted, sig)

	g.mu.Lock()
	g.cause = cause
	cancel, hook := g.cancel, g.hook
	g.mu.Unlock()

	if cancel != nil {
		cancel(cause)
	}
	if hook != nil {
		hook()
	}
	return true
}

// Context returns a child of parent that is cancelled, with an
// ErrInterrupted cause, on the first termination signal.
func (g *Guard) Context(parent context.Context) context.Context {
	if g == nil {
		return parent
	}

	ctx, cancel := context.WithCancelCause(parent)

	g.mu.Lock()
	g.cancel = cancel
	cause := g.cause
	g.mu.Unlock()

	if cause != nil {
		cancel(cause)
	}
	return ctx
}

// arm registers hook to run if a signal arrives while the caller is
// blocked. It returns false, without registering, if a signal has already
// been received.
func (g *Guard) arm(hook func()) bool {
	if g == nil {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cause != nil {
		return false
	}
	g.hook = hook
	return true
}

func (g *Guard) disarm() {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.hook = nil
	g.mu.Unlock()
}

// BeginShutdown marks the start of the shutdown sequence. Any signal
// received afterwards exits the process instead of starting another one.
func (g *Guard) BeginShutdown() {
	if g == nil {
		return
	}
	g.shutdown.Store(true)
}

// Close stops signal delivery to the guard.
func (g *Guard) Close() {
	if g == nil {
		return
	}

	g.stop()
	select {
	case <-g.quit:
	default:
		close(g.quit)
	}
	<-g.done
}
