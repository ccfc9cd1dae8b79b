package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const defaultPollInterval = time.Second

// Screen is one display known to the engine.
type Screen struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// EngineWindow is a single browser window owned by an Engine.
type EngineWindow interface {
	Show() error
	Hide() error
	// Evaluate runs script and returns its JSON result. Script failures are
	// reported as *ScriptException.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
}

// Engine is the embedded browser toolkit driven by the RendererLoop.
type Engine interface {
	Screens() []Screen
	// CreateWindow prepares a window bound to the chart document. loaded is
	// called once its initial load completes.
	CreateWindow(h WindowHandle, opts WindowOptions, loaded func()) (EngineWindow, error)
	// Run enters the toolkit run-loop and blocks until every window closes
	// or after returns. after is started once the toolkit is up; its context
	// is cancelled and it has returned before Run returns.
	Run(ctx context.Context, debug bool, after func(context.Context) error) error
}

// RendererLoop interprets commands inside the renderer process against an
// Engine. It is single threaded: only Run's goroutine dequeues commands.
type RendererLoop struct {
	engine       Engine
	ch           Channels
	pollInterval time.Duration

	alive   atomic.Bool
	started bool
	windows map[WindowHandle]EngineWindow
}

// RendererOption customizes a RendererLoop.
type RendererOption func(*RendererLoop)

// WithPollInterval overrides the bounded command wait.
func WithPollInterval(d time.Duration) RendererOption {
	return func(l *RendererLoop) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func NewRendererLoop(engine Engine, ch Channels, opts ...RendererOption) *RendererLoop {
	l := &RendererLoop{
		engine:       engine,
		ch:           ch,
		pollInterval: defaultPollInterval,
		windows:      make(map[WindowHandle]EngineWindow),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Alive reports whether the loop still accepts commands.
func (l *RendererLoop) Alive() bool { return l.alive.Load() }

// Run processes commands until Stop, a failed Start, the end of the engine
// run-loop, or ctx cancellation.
func (l *RendererLoop) Run(ctx context.Context) error {
	l.alive.Store(true)
	slog.Info("renderer loop started", "poll_interval", l.pollInterval)
	err := l.loop(ctx)
	l.alive.Store(false)
	slog.Info("renderer loop stopped", "windows", len(l.windows))
	return err
}

func (l *RendererLoop) loop(ctx context.Context) error {
	for l.alive.Load() {
		cmd, err := l.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		switch cmd.Kind {
		case KindCreateWindow:
			l.createWindow(cmd)
		case KindStart:
			if l.started {
				slog.Warn("renderer start ignored, run-loop already active")
				continue
			}
			return l.start(ctx, cmd.Debug)
		case KindStop:
			slog.Info("renderer stop received")
			l.alive.Store(false)
			return nil
		case KindShow, KindHide, KindEvaluate:
			l.dispatch(ctx, cmd)
		default:
			slog.Warn("renderer unknown command", "kind", cmd.Kind)
		}
	}
	return nil
}

func (l *RendererLoop) next(ctx context.Context) (Command, error) {
	pollCtx, cancel := context.WithTimeout(ctx, l.pollInterval)
	defer cancel()
	return l.ch.Commands.Get(pollCtx)
}

func (l *RendererLoop) createWindow(cmd Command) {
	if cmd.Create == nil {
		slog.Warn("renderer create window without options", "window", cmd.Window)
		return
	}
	opts := resolveGeometry(*cmd.Create, l.engine.Screens())
	win, err := l.engine.CreateWindow(cmd.Window, opts, l.ch.Loaded.Set)
	if err != nil {
		slog.Error("renderer create window failed", "window", cmd.Window, "error", err)
		return
	}
	l.windows[cmd.Window] = win
	slog.Info("renderer window created",
		"window", cmd.Window, "width", opts.Width, "height", opts.Height, "title", opts.Title)
}

func (l *RendererLoop) start(ctx context.Context, debug bool) error {
	if len(l.windows) == 0 {
		slog.Error("renderer start without windows")
		l.alive.Store(false)
		return nil
	}

	l.started = true
	slog.Info("renderer entering engine run-loop", "windows", len(l.windows), "debug", debug)
	err := l.engine.Run(ctx, debug, l.loop)
	l.alive.Store(false)
	if !l.ch.Events.TryPut(ExitEvent) {
		slog.Warn("renderer exit event dropped, event queue full")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (l *RendererLoop) dispatch(ctx context.Context, cmd Command) {
	win, ok := l.windows[cmd.Window]
	if !ok {
		// Unknown handles are dropped without a reply.
		slog.Debug("renderer command for unknown window", "window", cmd.Window, "kind", cmd.Kind)
		return
	}

	switch cmd.Kind {
	case KindShow:
		if err := win.Show(); err != nil {
			slog.Warn("renderer show failed", "window", cmd.Window, "error", err)
		}
	case KindHide:
		if err := win.Hide(); err != nil {
			slog.Warn("renderer hide failed", "window", cmd.Window, "error", err)
		}
	case KindEvaluate:
		l.evaluate(ctx, win, cmd)
	}
}

func (l *RendererLoop) evaluate(ctx context.Context, win EngineWindow, cmd Command) {
	value, err := win.Evaluate(ctx, cmd.Script)
	var diag *ScriptError
	if err != nil {
		d := ParseScriptError(scriptFailureText(err))
		diag = &d
	}

	if !cmd.WantsReturn {
		if diag != nil {
			scriptErr := &ScriptingError{Script: cmd.Script, Diag: *diag}
			slog.Error("renderer script failed", "window", cmd.Window, "error", scriptErr.Error())
		}
		return
	}

	rv := ReturnValue{Seq: cmd.Seq, Value: value, Err: diag}
	if err := l.ch.Returns.Put(ctx, rv); err != nil {
		slog.Error("renderer return dropped", "window", cmd.Window, "seq", cmd.Seq, "error", err)
	}
}

func scriptFailureText(err error) string {
	var exc *ScriptException
	if errors.As(err, &exc) {
		return exc.Raw
	}
	return err.Error()
}

// resolveGeometry applies maximize using the chosen screen, or the primary
// screen when none is chosen or the index is out of range.
func resolveGeometry(opts WindowOptions, screens []Screen) WindowOptions {
	if !opts.Maximize || len(screens) == 0 {
		return opts
	}
	screen := screens[0]
	if opts.Screen != nil && *opts.Screen >= 0 && *opts.Screen < len(screens) {
		screen = screens[*opts.Screen]
	}
	opts.Width, opts.Height = screen.Width, screen.Height
	return opts
}
