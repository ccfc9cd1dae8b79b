package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Process is the isolated renderer as seen by the supervisor.
type Process interface {
	Start() error
	// Done is closed once the renderer has exited.
	Done() <-chan struct{}
	// Terminate asks the renderer to exit (SIGTERM for OS processes).
	Terminate() error
	// Kill ends the renderer immediately.
	Kill() error
	Pid() int
}

// Spawner builds the renderer process for a fresh set of channels. It is
// called once per supervisor generation; the process is not started yet.
type Spawner func(ch Channels) Process

func alive(p Process) bool {
	select {
	case <-p.Done():
		return false
	default:
		return true
	}
}

// join waits up to timeout for p to exit and reports whether it did.
func join(p Process, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.Done():
		return true
	case <-t.C:
		return false
	}
}

// LocalProcess runs a RendererLoop on a goroutine of the current process.
// It isolates nothing, so it suits tests and hosts that embed an Engine.
// Terminate and Kill both cancel the loop's context.
type LocalProcess struct {
	loop *RendererLoop

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewLocalProcess returns a Spawner that runs engines built by newEngine.
// newEngine receives the event emitter for the JS callback API.
func NewLocalProcess(newEngine func(emit func(string)) Engine, opts ...RendererOption) Spawner {
	return func(ch Channels) Process {
		engine := newEngine(emitter(ch.Events))
		return &LocalProcess{
			loop: NewRendererLoop(engine, ch, opts...),
			done: make(chan struct{}),
		}
	}
}

func (p *LocalProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("local renderer already started")
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer close(p.done)
		err := p.loop.Run(ctx)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		if err != nil {
			slog.Error("local renderer exited with error", "error", err)
		}
	}()
	return nil
}

func (p *LocalProcess) Done() <-chan struct{} { return p.done }

func (p *LocalProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func (p *LocalProcess) Kill() error { return p.Terminate() }

func (p *LocalProcess) Pid() int { return 0 }

// Err returns the loop's exit error once Done is closed.
func (p *LocalProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// emitter adapts an event queue to the engine's callback API. Events are
// dropped with a warning rather than blocking the engine's event goroutine.
func emitter(events *Queue[string]) func(string) {
	return func(msg string) {
		if !events.TryPut(msg) {
			slog.Warn("renderer event dropped, event queue full", "event", truncate(msg, 80))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
