package bridge

import (
	"context"
	"testing"
	"time"
)

func TestRendererLoopSwallowsUnknownWindow(t *testing.T) {
	ch := NewChannels(0)
	engine := newFakeEngine(func(string) {})
	loop := NewRendererLoop(engine, ch, WithPollInterval(10*time.Millisecond))

	ch.Commands.TryPut(evaluateCommand(5, "1", true, 1))
	ch.Commands.TryPut(Command{Kind: KindShow, Window: 5})
	ch.Commands.TryPut(stopCommand())

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if loop.Alive() {
		t.Fatalf("Alive() = true after stop")
	}
	if n := ch.Returns.Len(); n != 0 {
		t.Fatalf("returns queued = %d; want 0", n)
	}
}

func TestRendererLoopStartWithoutWindows(t *testing.T) {
	ch := NewChannels(0)
	engine := newFakeEngine(func(string) {})
	loop := NewRendererLoop(engine, ch, WithPollInterval(10*time.Millisecond))

	ch.Commands.TryPut(startCommand(false))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if engine.runs != 0 {
		t.Fatalf("engine runs = %d; want 0", engine.runs)
	}
}

func TestRendererLoopEmitsExitWhenWindowsClose(t *testing.T) {
	ch := NewChannels(0)
	engine := newFakeEngine(func(string) {})
	loop := NewRendererLoop(engine, ch, WithPollInterval(10*time.Millisecond))

	ch.Commands.TryPut(createWindowCommand(1, WindowOptions{Width: 10, Height: 10}))
	ch.Commands.TryPut(startCommand(false))
	ch.Commands.TryPut(Command{Kind: KindShow, Window: 1})
	ch.Commands.TryPut(Command{Kind: KindHide, Window: 1})
	ch.Commands.TryPut(startCommand(false))

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case <-ch.Loaded.C():
	case <-time.After(time.Second):
		t.Fatalf("loaded signal not set")
	}
	waitFor(t, "show and hide", time.Second, func() bool {
		w := engine.window(1)
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.shows == 1 && w.hides == 1
	})
	engine.closeAll()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	msg, ok := ch.Events.TryGet()
	if !ok || msg != ExitEvent {
		t.Fatalf("event = %q, %v; want %q", msg, ok, ExitEvent)
	}
	engine.mu.Lock()
	runs := engine.runs
	engine.mu.Unlock()
	if runs != 1 {
		t.Fatalf("engine runs = %d; want 1", runs)
	}
}

func TestRendererLoopStopsOnCancel(t *testing.T) {
	ch := NewChannels(0)
	loop := NewRendererLoop(newFakeEngine(func(string) {}), ch, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}

func TestResolveGeometry(t *testing.T) {
	screens := []Screen{{Width: 1920, Height: 1080}, {Width: 2560, Height: 1440}}
	intp := func(v int) *int { return &v }

	tests := []struct {
		name       string
		opts       WindowOptions
		wantWidth  int
		wantHeight int
	}{
		{name: "no maximize", opts: WindowOptions{Width: 800, Height: 600}, wantWidth: 800, wantHeight: 600},
		{name: "primary", opts: WindowOptions{Width: 800, Height: 600, Maximize: true}, wantWidth: 1920, wantHeight: 1080},
		{name: "chosen screen", opts: WindowOptions{Maximize: true, Screen: intp(1)}, wantWidth: 2560, wantHeight: 1440},
		{name: "out of range", opts: WindowOptions{Maximize: true, Screen: intp(7)}, wantWidth: 1920, wantHeight: 1080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveGeometry(tt.opts, screens)
			if got.Width != tt.wantWidth || got.Height != tt.wantHeight {
				t.Fatalf("resolveGeometry() = %dx%d; want %dx%d", got.Width, got.Height, tt.wantWidth, tt.wantHeight)
			}
		})
	}

	if got := resolveGeometry(WindowOptions{Width: 5, Height: 6, Maximize: true}, nil); got.Width != 5 || got.Height != 6 {
		t.Fatalf("resolveGeometry() without screens = %dx%d; want 5x6", got.Width, got.Height)
	}
}
