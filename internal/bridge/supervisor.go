package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Options holds the supervisor's timeouts and flags.
type Options struct {
	SubmitTimeout   time.Duration
	ReturnTimeout   time.Duration
	StartTimeout    time.Duration
	StopJoinTimeout time.Duration
	TermJoinTimeout time.Duration
	QueueCapacity   int
	Debug           bool
}

// DefaultOptions returns the stock timeouts: 5s submit, return and start,
// then 2s and 1s for the shutdown joins.
func DefaultOptions() Options {
	return Options{
		SubmitTimeout:   5 * time.Second,
		ReturnTimeout:   5 * time.Second,
		StartTimeout:    5 * time.Second,
		StopJoinTimeout: 2 * time.Second,
		TermJoinTimeout: time.Second,
		QueueCapacity:   defaultQueueCapacity,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithSubmitTimeout bounds how long a command waits for queue space.
func WithSubmitTimeout(d time.Duration) Option { return func(o *Options) { o.SubmitTimeout = d } }

// WithReturnTimeout bounds how long EvaluateReturn waits for a reply.
func WithReturnTimeout(d time.Duration) Option { return func(o *Options) { o.ReturnTimeout = d } }

// WithStartTimeout bounds how long Start waits for the first window to load.
func WithStartTimeout(d time.Duration) Option { return func(o *Options) { o.StartTimeout = d } }

// WithDebug asks the engine for debug tooling on Start.
func WithDebug(debug bool) Option { return func(o *Options) { o.Debug = debug } }

// WithQueueCapacity sets the capacity of each channel in a generation.
func WithQueueCapacity(n int) Option { return func(o *Options) { o.QueueCapacity = n } }

// WithJoinTimeouts sets the waits after Stop and after Terminate.
func WithJoinTimeouts(stop, term time.Duration) Option {
	return func(o *Options) {
		o.StopJoinTimeout = stop
		o.TermJoinTimeout = term
	}
}

// WithOptions replaces every option at once.
func WithOptions(opts Options) Option { return func(o *Options) { *o = opts } }

// generation is one renderer lifetime: its channels, process and state.
type generation struct {
	ch      Channels
	proc    Process
	state   *stateMachine
	started atomic.Bool
	windows int
}

// Supervisor owns the renderer process and its channels and exposes a
// synchronous, timeout-bounded control API.
type Supervisor struct {
	opts  Options
	spawn Spawner

	mu         sync.Mutex
	gen        *generation
	lastHandle WindowHandle
	seq        uint64

	exitMu sync.Mutex
	evalMu sync.Mutex
}

// NewSupervisor returns a supervisor in NotStarted that spawns renderers
// with spawn.
func NewSupervisor(spawn Spawner, opts ...Option) *Supervisor {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Supervisor{opts: o, spawn: spawn}
	s.reset()
	return s
}

// reset builds a fresh generation so the supervisor can start again.
func (s *Supervisor) reset() {
	ch := NewChannels(s.opts.QueueCapacity)
	gen := &generation{ch: ch, proc: s.spawn(ch), state: &stateMachine{}}
	s.mu.Lock()
	s.gen = gen
	s.mu.Unlock()
}

func (s *Supervisor) current() *generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// State reports the current generation's state.
func (s *Supervisor) State() ProcessState { return s.current().state.get() }

// Events returns the current generation's event channel.
func (s *Supervisor) Events() *Queue[string] { return s.current().ch.Events }

// Windows returns how many windows were created in this generation.
func (s *Supervisor) Windows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.windows
}

// Debug reports whether Start asks the engine for debug tooling.
func (s *Supervisor) Debug() bool { return s.opts.Debug }

func (s *Supervisor) submit(ctx context.Context, gen *generation, cmd Command) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()
	if err := gen.ch.Commands.Put(ctx, cmd); err != nil {
		slog.Error("supervisor command submit failed",
			"kind", cmd.Kind, "window", cmd.Window, "timeout", s.opts.SubmitTimeout, "error", err)
		return err
	}
	return nil
}

// CreateWindow enqueues a window and returns its handle at once; the
// renderer creates the window later, in command order.
func (s *Supervisor) CreateWindow(ctx context.Context, opts WindowOptions) (WindowHandle, error) {
	if opts.Width < 0 || opts.Height < 0 {
		return 0, newError(CodeValidation, "window size must not be negative", nil)
	}

	s.mu.Lock()
	gen := s.gen
	s.lastHandle++
	h := s.lastHandle
	s.mu.Unlock()

	// A handle whose submit fails is burned, never handed out again.
	if err := s.submit(ctx, gen, createWindowCommand(h, opts)); err != nil {
		return 0, err
	}

	s.mu.Lock()
	gen.windows++
	s.mu.Unlock()

	slog.Debug("supervisor window queued", "window", h)
	return h, nil
}

func (s *Supervisor) checkHandle(h WindowHandle) (*generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == 0 || h > s.lastHandle {
		return nil, newError(CodeUnknownWindow, fmt.Sprintf("window %d has not been created", h), nil)
	}
	return s.gen, nil
}

// Show asks the renderer to show window h.
func (s *Supervisor) Show(ctx context.Context, h WindowHandle) error {
	gen, err := s.checkHandle(h)
	if err != nil {
		return err
	}
	return s.submit(ctx, gen, Command{Kind: KindShow, Window: h})
}

// Hide asks the renderer to hide window h.
func (s *Supervisor) Hide(ctx context.Context, h WindowHandle) error {
	gen, err := s.checkHandle(h)
	if err != nil {
		return err
	}
	return s.submit(ctx, gen, Command{Kind: KindHide, Window: h})
}

// Evaluate enqueues script for window h without waiting for a result.
func (s *Supervisor) Evaluate(ctx context.Context, h WindowHandle, script string) error {
	gen, err := s.checkHandle(h)
	if err != nil {
		return err
	}
	return s.submit(ctx, gen, evaluateCommand(h, script, false, 0))
}

// EvaluateReturn runs script on window h and waits for its result. Calls
// are serialized; replies are matched by sequence id so a reply left over
// from a timed-out call is discarded rather than returned to the next one.
func (s *Supervisor) EvaluateReturn(ctx context.Context, h WindowHandle, script string) (json.RawMessage, error) {
	gen, err := s.checkHandle(h)
	if err != nil {
		return nil, err
	}

	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if err := s.submit(ctx, gen, evaluateCommand(h, script, true, seq)); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReturnTimeout)
	defer cancel()
	for {
		rv, err := gen.ch.Returns.Get(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, newError(CodeReturnTimeout, fmt.Sprintf("no reply for window %d within %s", h, s.opts.ReturnTimeout), err)
		}
		if rv.Seq != seq {
			slog.Warn("supervisor discarding stale reply", "want_seq", seq, "got_seq", rv.Seq)
			continue
		}
		if rv.Err != nil {
			return nil, &ScriptingError{Script: script, Diag: *rv.Err}
		}
		return rv.Value, nil
	}
}

// Start spawns the renderer and blocks until the first window has loaded.
// On timeout or early renderer exit the supervisor is torn down.
func (s *Supervisor) Start(ctx context.Context) error {
	gen := s.current()
	if gen.state.get() != StateNotStarted {
		return newError(CodeAlreadyStarted, "renderer already started: "+gen.state.get().String(), nil)
	}
	if s.Windows() == 0 {
		return newError(CodeNoWindows, "no windows created before start", nil)
	}
	if !gen.state.advanceFrom(StateNotStarted, StateStarting) {
		return newError(CodeAlreadyStarted, "renderer already started", nil)
	}

	gen.ch.Loaded.Clear()
	if err := s.spawnLocked(gen); err != nil {
		return err
	}
	slog.Info("supervisor renderer spawned", "pid", gen.proc.Pid(), "windows", s.Windows())

	if err := s.submit(ctx, gen, startCommand(s.opts.Debug)); err != nil {
		s.teardown(gen)
		return err
	}

	timer := time.NewTimer(s.opts.StartTimeout)
	defer timer.Stop()
	select {
	case <-gen.ch.Loaded.C():
		gen.state.advance(StateReady)
		slog.Info("supervisor renderer ready", "pid", gen.proc.Pid())
		return nil
	case <-gen.proc.Done():
		slog.Error("supervisor renderer exited before ready")
		s.teardown(gen)
		return newError(CodeRendererExited, "renderer exited before the first window loaded", nil)
	case <-timer.C:
		slog.Error("supervisor renderer failed to load", "timeout", s.opts.StartTimeout)
		s.teardown(gen)
		return newError(CodeStartTimeout, fmt.Sprintf("chart failed to load within %s", s.opts.StartTimeout), nil)
	case <-ctx.Done():
		s.teardown(gen)
		return ctx.Err()
	}
}

// spawnLocked starts gen's process under exitMu, so a concurrent Exit either
// replaces gen before the spawn or waits and then stops the spawned renderer.
func (s *Supervisor) spawnLocked(gen *generation) error {
	s.exitMu.Lock()
	if s.current() != gen {
		s.exitMu.Unlock()
		return newError(CodeRendererExited, "supervisor exited during start", nil)
	}
	err := gen.proc.Start()
	if err == nil {
		gen.started.Store(true)
	}
	s.exitMu.Unlock()

	if err != nil {
		slog.Error("supervisor spawn failed", "error", err)
		s.teardown(gen)
		return fmt.Errorf("spawn renderer: %w", err)
	}
	return nil
}

// markRunning records that an event pump is serving a ready renderer.
func (s *Supervisor) markRunning() bool {
	return s.current().state.advanceFrom(StateReady, StateRunning)
}

// Exit stops the renderer and resets the supervisor for reuse. It escalates
// from Stop to Terminate to Kill, never returns an error and is safe to
// call concurrently or repeatedly.
func (s *Supervisor) Exit() {
	s.teardown(nil)
}

// teardown stops gen, or the current generation when gen is nil. A stale
// gen that has already been replaced is left alone.
func (s *Supervisor) teardown(gen *generation) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()

	cur := s.current()
	if gen == nil {
		gen = cur
	}
	if gen != cur {
		return
	}
	gen.state.advance(StateStopping)
	s.stopProcess(gen)

	c, r, e := s.drain(gen)
	gen.state.advance(StateTerminated)
	s.reset()
	slog.Info("supervisor exit complete", "drained_commands", c, "drained_returns", r, "drained_events", e)
}

func (s *Supervisor) stopProcess(gen *generation) {
	defer func() {
		if rec := recover(); rec != nil {
			logTeardown("terminate renderer", fmt.Errorf("panic: %v", rec))
		}
	}()

	proc := gen.proc
	if !gen.started.Load() || !alive(proc) {
		return
	}

	if !gen.ch.Commands.TryPut(stopCommand()) {
		slog.Warn("supervisor stop command not queued, command queue full")
	}
	if join(proc, s.opts.StopJoinTimeout) {
		slog.Info("supervisor renderer stopped gracefully", "pid", proc.Pid())
		return
	}

	slog.Warn("supervisor renderer ignored stop, terminating", "pid", proc.Pid(), "waited", s.opts.StopJoinTimeout)
	if err := proc.Terminate(); err != nil {
		logTeardown("terminate renderer", err)
	}
	if join(proc, s.opts.TermJoinTimeout) {
		return
	}

	slog.Warn("supervisor renderer ignored terminate, killing", "pid", proc.Pid(), "waited", s.opts.TermJoinTimeout)
	if err := proc.Kill(); err != nil {
		logTeardown("kill renderer", err)
	}
}

func (s *Supervisor) drain(gen *generation) (commands, returns, events int) {
	defer func() {
		if rec := recover(); rec != nil {
			logTeardown("drain channels", fmt.Errorf("panic: %v", rec))
		}
	}()
	return gen.ch.Drain()
}

func logTeardown(step string, err error) {
	var coded *CodedError
	if !errors.As(err, &coded) {
		err = newError(CodeTeardown, step, err)
	}
	slog.Error("supervisor teardown error", "step", step, "error", err)
}
