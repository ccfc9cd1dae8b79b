package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPumpInterval = 50 * time.Millisecond

// HandlerFunc handles a UI event and returns when it is done.
type HandlerFunc func(ctx context.Context, args []string) error

// AsyncHandlerFunc starts handling a UI event and reports completion on the
// returned channel. The pump waits for it before taking the next event.
type AsyncHandlerFunc func(ctx context.Context, args []string) <-chan error

// Observer sees every decoded event before its handler runs.
type Observer func(name string, args []string)

type handler struct {
	sync  HandlerFunc
	async AsyncHandlerFunc
}

// Registry maps event names to handlers. One registry is shared by every
// window of a supervisor.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]handler
	observers []Observer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]handler)}
}

// Handle registers an immediate handler for name.
func (r *Registry) Handle(name string, fn HandlerFunc) error {
	return r.add(name, handler{sync: fn})
}

// HandleAsync registers a suspending handler for name.
func (r *Registry) HandleAsync(name string, fn AsyncHandlerFunc) error {
	return r.add(name, handler{async: fn})
}

func (r *Registry) add(name string, h handler) error {
	if name == "" {
		return newError(CodeValidation, "handler name is required", nil)
	}
	if name == ExitEvent {
		return newError(CodeValidation, fmt.Sprintf("%q is reserved", ExitEvent), nil)
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return nil
}

// Remove drops the handler registered for name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.handlers, name)
	r.mu.Unlock()
}

// Observe adds an observer called for every decoded event.
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (handler, []Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, append([]Observer(nil), r.observers...), ok
}

// EventPump polls a supervisor's event channel and runs handlers one at a
// time on its own goroutine.
type EventPump struct {
	sup      *Supervisor
	reg      *Registry
	interval time.Duration
	alive    atomic.Bool
}

// PumpOption customizes an EventPump.
type PumpOption func(*EventPump)

// WithPumpInterval overrides the delay between empty polls.
func WithPumpInterval(d time.Duration) PumpOption {
	return func(p *EventPump) {
		if d > 0 {
			p.interval = d
		}
	}
}

func NewEventPump(sup *Supervisor, reg *Registry, opts ...PumpOption) *EventPump {
	p := &EventPump{sup: sup, reg: reg, interval: defaultPumpInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stop makes Run return after its current poll.
func (p *EventPump) Stop() { p.alive.Store(false) }

// Alive reports whether Run is pumping.
func (p *EventPump) Alive() bool { return p.alive.Load() }

// Run dispatches events until Stop, the exit event, or ctx cancellation.
// The exit event tears the supervisor down. Cancellation is a normal return.
func (p *EventPump) Run(ctx context.Context) error {
	p.alive.Store(true)
	defer p.alive.Store(false)
	p.sup.markRunning()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for p.alive.Load() {
		msg, ok := p.sup.Events().TryGet()
		if !ok {
			select {
			case <-ctx.Done():
				slog.Info("event pump cancelled", "reason", ctx.Err())
				return nil
			case <-ticker.C:
			}
			continue
		}

		if msg == ExitEvent {
			slog.Info("event pump received exit")
			p.sup.Exit()
			return nil
		}
		p.dispatch(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (p *EventPump) dispatch(ctx context.Context, msg string) {
	name, args, err := DecodeEvent(msg)
	if err != nil {
		slog.Warn("event pump undecodable event", "event", truncate(msg, 80), "error", err)
		return
	}

	h, observers, ok := p.reg.lookup(name)
	for _, obs := range observers {
		if err := observe(obs, name, args); err != nil {
			slog.Error("event pump observer failed", "handler", name, "error", err)
		}
	}
	if !ok {
		slog.Warn("event pump no handler", "handler", name)
		return
	}

	if err := invoke(ctx, h, args); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("event pump handler failed", "handler", name, "error", err)
	}
}

func observe(obs Observer, name string, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("observer panic: %v", rec)
		}
	}()
	obs(name, args)
	return nil
}

func invoke(ctx context.Context, h handler, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if h.sync != nil {
		return h.sync(ctx, args)
	}
	done := h.async(ctx, args)
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
