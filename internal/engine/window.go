package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

var errNotOpen = errors.New("engine window is not open")

type window struct {
	engine *Engine
	handle bridge.WindowHandle
	opts   bridge.WindowOptions
	loaded func()

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	loadedOnce sync.Once
	closedOnce sync.Once
}

// openIn attaches the window to a browser target and loads the index
// document. The first window reuses the browser's initial target; later
// ones get a new browser window.
func (w *window) openIn(browserCtx context.Context, reuse bool) error {
	var (
		tabCtx context.Context
		cancel context.CancelFunc
	)
	if reuse {
		tabCtx, cancel = browserCtx, func() {}
	} else {
		c := chromedp.FromContext(browserCtx)
		if c == nil || c.Browser == nil {
			return errNotOpen
		}
		id, err := target.CreateTarget("about:blank").WithNewWindow(true).Do(cdp.WithExecutor(browserCtx, c.Browser))
		if err != nil {
			return fmt.Errorf("create target for window %d: %w", w.handle, err)
		}
		tabCtx, cancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
	}

	chromedp.ListenTarget(tabCtx, w.listen)

	actions := []chromedp.Action{
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(callbackShim).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(w.applyBounds),
		chromedp.Navigate(w.engine.cfg.IndexURL),
	}
	if w.opts.Title != "" {
		actions = append(actions, chromedp.Evaluate("document.title = "+jsString(w.opts.Title), nil))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return fmt.Errorf("load window %d: %w", w.handle, err)
	}

	w.mu.Lock()
	w.ctx, w.cancel = tabCtx, cancel
	w.mu.Unlock()
	w.engine.windowOpened()
	slog.Debug("engine window loaded", "window", w.handle)
	w.loadedOnce.Do(w.loaded)
	return nil
}

// listen runs on chromedp's event goroutine; it must not issue CDP calls.
func (w *window) listen(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name == BindingName {
			w.engine.emit(e.Payload)
		}
	case *inspector.EventDetached:
		w.closedOnce.Do(func() {
			slog.Debug("engine window detached", "window", w.handle, "reason", e.Reason)
			w.engine.windowClosed(w.handle)
		})
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails != nil {
			slog.Warn("engine uncaught exception", "window", w.handle, "text", e.ExceptionDetails.Text)
		}
	}
}

func (w *window) applyBounds(ctx context.Context) error {
	id, _, err := browser.GetWindowForTarget().Do(ctx)
	if err != nil {
		return err
	}
	return browser.SetWindowBounds(id, boundsFor(w.opts)).Do(ctx)
}

func boundsFor(opts bridge.WindowOptions) *browser.Bounds {
	b := &browser.Bounds{
		Width:       int64(opts.Width),
		Height:      int64(opts.Height),
		WindowState: browser.WindowStateNormal,
	}
	if opts.X != nil {
		b.Left = int64(*opts.X)
	}
	if opts.Y != nil {
		b.Top = int64(*opts.Y)
	}
	return b
}

func (w *window) tab() (context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return nil, errNotOpen
	}
	return w.ctx, nil
}

func (w *window) setState(state browser.WindowState) error {
	ctx, err := w.tab()
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		if err := browser.SetWindowBounds(id, &browser.Bounds{WindowState: state}).Do(ctx); err != nil {
			return err
		}
		if state == browser.WindowStateNormal {
			return page.BringToFront().Do(ctx)
		}
		return nil
	}))
}

func (w *window) Show() error { return w.setState(browser.WindowStateNormal) }

func (w *window) Hide() error { return w.setState(browser.WindowStateMinimized) }

// Evaluate runs script in the page, awaiting promises, and returns the
// result by value. A thrown exception becomes a *bridge.ScriptException
// carrying a JSON diagnostic.
func (w *window) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	tabCtx, err := w.tab()
	if err != nil {
		return nil, err
	}
	evalCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out json.RawMessage
	err = chromedp.Run(evalCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(script).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return &bridge.ScriptException{Raw: exceptionJSON(exc)}
		}
		out = remoteValue(res)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// remoteValue converts an evaluation result to JSON. Undefined becomes null
// and unserializable numbers become strings.
func remoteValue(res *runtime.RemoteObject) json.RawMessage {
	if res == nil {
		return json.RawMessage("null")
	}
	if res.UnserializableValue != "" {
		b, _ := json.Marshal(string(res.UnserializableValue))
		return b
	}
	if len(res.Value) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(res.Value)
}

func exceptionJSON(exc *runtime.ExceptionDetails) string {
	diag := bridge.ScriptError{
		Name:    "Error",
		Line:    int(exc.LineNumber),
		Column:  int(exc.ColumnNumber),
		Message: exc.Text,
	}
	if obj := exc.Exception; obj != nil {
		if obj.ClassName != "" {
			diag.Name = obj.ClassName
		}
		if obj.Description != "" {
			first, _, _ := strings.Cut(obj.Description, "\n")
			diag.Message = strings.TrimPrefix(first, diag.Name+": ")
		} else if len(obj.Value) > 0 {
			diag.Message = string(obj.Value)
		}
	}
	b, err := json.Marshal(diag)
	if err != nil {
		return exc.Text
	}
	return string(b)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
