// Package chart is the controller-side facade over a bridge supervisor. A
// Window is one logical chart window; every Window created from the same
// supervisor shares its renderer process and handler registry.
package chart

import (
	"context"
	"encoding/json"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

// Window addresses one renderer-side window.
type Window struct {
	sup     *bridge.Supervisor
	reg     *bridge.Registry
	handle  bridge.WindowHandle
	options bridge.WindowOptions
	pump    []bridge.PumpOption
}

// Option customizes a Window.
type Option func(*Window)

// WithPumpOptions sets the options used by ShowBlocking's event pump.
func WithPumpOptions(opts ...bridge.PumpOption) Option {
	return func(w *Window) { w.pump = opts }
}

// New creates a window on sup. Handlers registered through the window go to
// reg, which should be the one registry used with sup.
func New(ctx context.Context, sup *bridge.Supervisor, reg *bridge.Registry, opts bridge.WindowOptions, options ...Option) (*Window, error) {
	h, err := sup.CreateWindow(ctx, opts)
	if err != nil {
		return nil, err
	}
	w := &Window{sup: sup, reg: reg, handle: h, options: opts}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

func (w *Window) Handle() bridge.WindowHandle { return w.handle }

func (w *Window) Options() bridge.WindowOptions { return w.options }

// Evaluate runs script without waiting for a result.
func (w *Window) Evaluate(ctx context.Context, script string) error {
	return w.sup.Evaluate(ctx, w.handle, script)
}

// EvaluateReturn runs script and returns its JSON result.
func (w *Window) EvaluateReturn(ctx context.Context, script string) (json.RawMessage, error) {
	return w.sup.EvaluateReturn(ctx, w.handle, script)
}

// EvaluateInto runs script and decodes its result into out.
func (w *Window) EvaluateInto(ctx context.Context, script string, out any) error {
	raw, err := w.EvaluateReturn(ctx, script)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Show starts the renderer if it has not been started; otherwise it shows
// this window.
func (w *Window) Show(ctx context.Context) error {
	if w.sup.State() == bridge.StateNotStarted {
		return w.sup.Start(ctx)
	}
	return w.sup.Show(ctx, w.handle)
}

// Hide hides this window.
func (w *Window) Hide(ctx context.Context) error {
	return w.sup.Hide(ctx, w.handle)
}

// ShowBlocking shows the window and dispatches UI events on the calling
// goroutine until the renderer exits or ctx is cancelled, then exits.
func (w *Window) ShowBlocking(ctx context.Context) error {
	if err := w.Show(ctx); err != nil {
		return err
	}
	defer w.sup.Exit()
	return bridge.NewEventPump(w.sup, w.reg, w.pump...).Run(ctx)
}

// On registers an immediate event handler shared by every window.
func (w *Window) On(name string, fn bridge.HandlerFunc) error {
	return w.reg.Handle(name, fn)
}

// OnAsync registers a suspending event handler shared by every window.
func (w *Window) OnAsync(name string, fn bridge.AsyncHandlerFunc) error {
	return w.reg.HandleAsync(name, fn)
}

// Exit stops the shared renderer. Every window of the supervisor becomes
// stale; a restarted supervisor needs new windows.
func (w *Window) Exit() { w.sup.Exit() }

// Close exits the renderer. It is meant for defer.
func (w *Window) Close() error {
	w.sup.Exit()
	return nil
}
