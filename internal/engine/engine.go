// Package engine drives Chrome through chromedp as the renderer's browser
// engine. Each chart window is one browser window showing the index document.
package engine

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

//go:embed index.html
var indexHTML []byte

// BindingName is the page binding the callback shim forwards events to.
const BindingName = "chartbridgeEmit"

// callbackShim installs window.callbackFunction, the JS side of the event
// API, ahead of every document load.
const callbackShim = `window.callbackFunction = function (msg) { window.` + BindingName + `(String(msg)); };`

// Config controls how the engine launches the browser.
type Config struct {
	ExecPath    string
	UserDataDir string
	IndexURL    string
	Headless    bool
	Screens     []bridge.Screen
}

// DefaultIndexURL is the embedded black index document as a data URL.
func DefaultIndexURL() string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString(indexHTML)
}

// Engine implements bridge.Engine on a single Chrome process.
type Engine struct {
	cfg  Config
	emit func(string)

	mu         sync.Mutex
	browserCtx context.Context
	windows    []*window
	open       int
	allClosed  chan struct{}
	closeOnce  sync.Once
}

var _ bridge.Engine = (*Engine)(nil)

// New returns an engine that reports UI events through emit.
func New(cfg Config, emit func(string)) *Engine {
	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL()
	}
	if len(cfg.Screens) == 0 {
		cfg.Screens = []bridge.Screen{{Width: 1920, Height: 1080}}
	}
	return &Engine{cfg: cfg, emit: emit, allClosed: make(chan struct{})}
}

// Screens returns the configured displays; the primary comes first.
func (e *Engine) Screens() []bridge.Screen {
	return append([]bridge.Screen(nil), e.cfg.Screens...)
}

// CreateWindow records a window. Windows created before Run open when the
// browser starts; later ones open at once.
func (e *Engine) CreateWindow(h bridge.WindowHandle, opts bridge.WindowOptions, loaded func()) (bridge.EngineWindow, error) {
	if opts.OnTop {
		slog.Debug("engine on_top not supported by chrome, ignoring", "window", h)
	}
	w := &window{engine: e, handle: h, opts: opts, loaded: loaded}

	e.mu.Lock()
	e.windows = append(e.windows, w)
	browserCtx := e.browserCtx
	first := len(e.windows) == 1
	e.mu.Unlock()

	if browserCtx != nil {
		if err := w.openIn(browserCtx, first); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run launches the browser, opens the pending windows and serves after until
// it returns, every window is closed or the browser goes away.
func (e *Engine) Run(ctx context.Context, debug bool, after func(context.Context) error) error {
	browserPath, err := detectBrowser(e.cfg.ExecPath)
	if err != nil {
		return err
	}
	slog.Info("engine launching browser", "path", browserPath, "debug", debug, "headless", e.cfg.Headless)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, e.allocatorOptions(browserPath, debug)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	e.mu.Lock()
	e.browserCtx = browserCtx
	pending := append([]*window(nil), e.windows...)
	e.mu.Unlock()

	opened := 0
	for i, w := range pending {
		if err := w.openIn(browserCtx, i == 0); err != nil {
			slog.Error("engine window open failed", "window", w.handle, "error", err)
			continue
		}
		opened++
	}
	if opened == 0 {
		return errors.New("engine opened no windows")
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	done := make(chan error, 1)
	go func() { done <- after(runCtx) }()

	select {
	case err := <-done:
		return err
	case <-e.allClosed:
		slog.Info("engine all windows closed")
	case <-browserCtx.Done():
		slog.Info("engine browser gone", "reason", context.Cause(browserCtx))
	}
	cancelRun()
	<-done
	return nil
}

func (e *Engine) windowOpened() {
	e.mu.Lock()
	e.open++
	e.mu.Unlock()
}

func (e *Engine) windowClosed(h bridge.WindowHandle) {
	e.mu.Lock()
	e.open--
	remaining := e.open
	e.mu.Unlock()
	slog.Info("engine window closed", "window", h, "remaining", remaining)
	if remaining <= 0 {
		e.closeOnce.Do(func() { close(e.allClosed) })
	}
}
