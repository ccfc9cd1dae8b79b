package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

func TestExceptionJSONRoundTripsThroughParser(t *testing.T) {
	exc := &runtime.ExceptionDetails{
		Text:         "Uncaught",
		LineNumber:   4,
		ColumnNumber: 17,
		Exception: &runtime.RemoteObject{
			Type:        "object",
			ClassName:   "TypeError",
			Description: "TypeError: chart.fit is not a function\n    at <anonymous>:5:18",
		},
	}

	got := bridge.ParseScriptError(exceptionJSON(exc))
	want := bridge.ScriptError{Name: "TypeError", Line: 4, Column: 17, Message: "chart.fit is not a function"}
	if got != want {
		t.Fatalf("ParseScriptError(exceptionJSON()) = %+v; want %+v", got, want)
	}
}

func TestExceptionJSONWithoutObject(t *testing.T) {
	got := bridge.ParseScriptError(exceptionJSON(&runtime.ExceptionDetails{Text: "Uncaught 5"}))
	want := bridge.ScriptError{Name: "Error", Message: "Uncaught 5"}
	if got != want {
		t.Fatalf("ParseScriptError(exceptionJSON()) = %+v; want %+v", got, want)
	}
}

func TestRemoteValue(t *testing.T) {
	tests := []struct {
		name string
		obj  *runtime.RemoteObject
		want string
	}{
		{name: "nil", obj: nil, want: "null"},
		{name: "undefined", obj: &runtime.RemoteObject{Type: "undefined"}, want: "null"},
		{name: "value", obj: &runtime.RemoteObject{Type: "object", Value: []byte(`{"a":1}`)}, want: `{"a":1}`},
		{name: "unserializable", obj: &runtime.RemoteObject{Type: "number", UnserializableValue: "NaN"}, want: `"NaN"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(remoteValue(tt.obj)); got != tt.want {
				t.Fatalf("remoteValue() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestBoundsFor(t *testing.T) {
	x, y := 10, 20
	b := boundsFor(bridge.WindowOptions{Width: 800, Height: 600, X: &x, Y: &y})
	if b.Width != 800 || b.Height != 600 || b.Left != 10 || b.Top != 20 {
		t.Fatalf("boundsFor() = %+v; want 800x600 at 10,20", b)
	}
	b = boundsFor(bridge.WindowOptions{Width: 300, Height: 200})
	if b.Left != 0 || b.Top != 0 {
		t.Fatalf("boundsFor() without position = %+v; want zero left/top", b)
	}
}

func TestNewDefaults(t *testing.T) {
	e := New(Config{}, func(string) {})
	if !strings.HasPrefix(e.cfg.IndexURL, "data:text/html;base64,") {
		t.Fatalf("IndexURL = %q; want embedded data URL", e.cfg.IndexURL)
	}
	html, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(e.cfg.IndexURL, "data:text/html;base64,"))
	if err != nil || !strings.Contains(string(html), "background: #000000") {
		t.Fatalf("index document = %q, %v; want black background", html, err)
	}
	if screens := e.Screens(); len(screens) != 1 || screens[0].Width != 1920 {
		t.Fatalf("Screens() = %+v; want one 1920 wide screen", screens)
	}
}

func TestWindowBeforeRunIsNotOpen(t *testing.T) {
	e := New(Config{}, func(string) {})
	w, err := e.CreateWindow(1, bridge.WindowOptions{Width: 100, Height: 100, OnTop: true}, func() {})
	if err != nil {
		t.Fatalf("CreateWindow() error = %v", err)
	}
	if err := w.Show(); !errors.Is(err, errNotOpen) {
		t.Fatalf("Show() error = %v; want errNotOpen", err)
	}
	if _, err := w.Evaluate(context.Background(), "1"); !errors.Is(err, errNotOpen) {
		t.Fatalf("Evaluate() error = %v; want errNotOpen", err)
	}
}

func TestBindingEventsReachEmitter(t *testing.T) {
	var got []string
	e := New(Config{}, func(msg string) { got = append(got, msg) })
	w := &window{engine: e, handle: 1}

	w.listen(&runtime.EventBindingCalled{Name: "other", Payload: "ignored"})
	w.listen(&runtime.EventBindingCalled{Name: BindingName, Payload: bridge.EncodeEvent("click", "a")})
	if len(got) != 1 || got[0] != "click_~_a" {
		t.Fatalf("emitted = %q; want [click_~_a]", got)
	}
}

func TestDetectBrowserExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := detectBrowser(path)
	if err != nil || got != path {
		t.Fatalf("detectBrowser(%q) = %q, %v", path, got, err)
	}
	if _, err := detectBrowser(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("detectBrowser(missing) error = nil")
	}
}

func TestCallbackShimUsesBinding(t *testing.T) {
	if !strings.Contains(callbackShim, "window."+BindingName+"(") {
		t.Fatalf("callbackShim = %q; want call to %s", callbackShim, BindingName)
	}
	var s string
	if err := json.Unmarshal([]byte(jsString(`a"b`)), &s); err != nil || s != `a"b` {
		t.Fatalf("jsString() round trip = %q, %v", s, err)
	}
}
