package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/chart"
)

// WindowInfo describes one named chart window.
type WindowInfo struct {
	Name    string               `json:"name"`
	Handle  uint64               `json:"handle"`
	Options bridge.WindowOptions `json:"options"`
}

// StateInfo is a snapshot of the renderer lifecycle.
type StateInfo struct {
	State     string `json:"state"`
	Windows   int    `json:"windows"`
	PumpAlive bool   `json:"pump_alive"`
	Debug     bool   `json:"debug"`
}

// Service manages named chart windows on one supervisor and keeps an event
// pump running while the renderer is up.
type Service struct {
	sup      *bridge.Supervisor
	reg      *bridge.Registry
	pumpOpts []bridge.PumpOption

	mu         sync.Mutex
	windows    map[string]*chart.Window
	creating   map[string]bool
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

func NewService(sup *bridge.Supervisor, reg *bridge.Registry, pumpOpts ...bridge.PumpOption) *Service {
	return &Service{
		sup:      sup,
		reg:      reg,
		pumpOpts: pumpOpts,
		windows:  make(map[string]*chart.Window),
		creating: make(map[string]bool),
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &bridge.CodedError{Code: bridge.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) window(name string) (*chart.Window, error) {
	if err := s.requireNonEmpty(name, "window name"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[strings.TrimSpace(name)]
	if !ok {
		return nil, &bridge.CodedError{Code: bridge.CodeUnknownWindow, Message: fmt.Sprintf("window %q not found", name)}
	}
	return w, nil
}

// CreateWindow creates a named window on the current renderer generation.
func (s *Service) CreateWindow(ctx context.Context, name string, opts bridge.WindowOptions) (WindowInfo, error) {
	if err := s.requireNonEmpty(name, "window name"); err != nil {
		return WindowInfo{}, err
	}
	name = strings.TrimSpace(name)

	// The name stays reserved while the create command is queued.
	s.mu.Lock()
	_, exists := s.windows[name]
	if exists || s.creating[name] {
		s.mu.Unlock()
		return WindowInfo{}, &bridge.CodedError{Code: bridge.CodeValidation, Message: fmt.Sprintf("window %q already exists", name)}
	}
	s.creating[name] = true
	s.mu.Unlock()

	w, err := chart.New(ctx, s.sup, s.reg, opts)
	s.mu.Lock()
	delete(s.creating, name)
	if err == nil {
		s.windows[name] = w
	}
	s.mu.Unlock()
	if err != nil {
		return WindowInfo{}, err
	}
	return windowInfo(name, w), nil
}

func windowInfo(name string, w *chart.Window) WindowInfo {
	return WindowInfo{Name: name, Handle: uint64(w.Handle()), Options: w.Options()}
}

// ListWindows returns the windows of the current generation sorted by handle.
func (s *Service) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	s.mu.Lock()
	out := make([]WindowInfo, 0, len(s.windows))
	for name, w := range s.windows {
		out = append(out, windowInfo(name, w))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *Service) Evaluate(ctx context.Context, name, script string) error {
	if err := s.requireNonEmpty(script, "script"); err != nil {
		return err
	}
	w, err := s.window(name)
	if err != nil {
		return err
	}
	return w.Evaluate(ctx, script)
}

func (s *Service) EvaluateReturn(ctx context.Context, name, script string) (json.RawMessage, error) {
	if err := s.requireNonEmpty(script, "script"); err != nil {
		return nil, err
	}
	w, err := s.window(name)
	if err != nil {
		return nil, err
	}
	return w.EvaluateReturn(ctx, script)
}

// Show shows a window, starting the renderer first if needed.
func (s *Service) Show(ctx context.Context, name string) error {
	w, err := s.window(name)
	if err != nil {
		return err
	}
	if err := w.Show(ctx); err != nil {
		return err
	}
	s.ensurePump()
	return nil
}

func (s *Service) Hide(ctx context.Context, name string) error {
	w, err := s.window(name)
	if err != nil {
		return err
	}
	return w.Hide(ctx)
}

// Start launches the renderer with every window created so far.
func (s *Service) Start(ctx context.Context) (StateInfo, error) {
	if err := s.sup.Start(ctx); err != nil {
		return StateInfo{}, err
	}
	s.ensurePump()
	return s.State(ctx)
}

// Exit stops the pump and the renderer and forgets the windows.
func (s *Service) Exit(ctx context.Context) (StateInfo, error) {
	s.mu.Lock()
	cancel, done := s.pumpCancel, s.pumpDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return StateInfo{}, ctx.Err()
		}
	}
	s.sup.Exit()
	s.forgetWindows()
	return s.State(ctx)
}

func (s *Service) State(ctx context.Context) (StateInfo, error) {
	s.mu.Lock()
	pumpAlive := s.pumpDone != nil
	s.mu.Unlock()
	return StateInfo{
		State:     s.sup.State().String(),
		Windows:   s.sup.Windows(),
		PumpAlive: pumpAlive,
		Debug:     s.sup.Debug(),
	}, nil
}

// Handle registers an event handler on the shared registry.
func (s *Service) Handle(name string, fn bridge.HandlerFunc) error {
	return s.reg.Handle(name, fn)
}

// Wait blocks until the current event pump stops.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.pumpDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) ensurePump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pumpDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pumpCancel, s.pumpDone = cancel, done

	pump := bridge.NewEventPump(s.sup, s.reg, s.pumpOpts...)
	go func() {
		defer close(done)
		if err := pump.Run(ctx); err != nil {
			slog.Error("controller event pump failed", "error", err)
		}
		s.pumpStopped(done, ctx.Err() == nil)
	}()
}

// pumpStopped clears the pump bookkeeping. A pump that stopped on its own
// saw the renderer exit, so the windows it served are gone.
func (s *Service) pumpStopped(done chan struct{}, rendererExited bool) {
	s.mu.Lock()
	if s.pumpDone == done {
		s.pumpCancel()
		s.pumpCancel, s.pumpDone = nil, nil
	}
	s.mu.Unlock()
	if rendererExited {
		slog.Info("controller renderer exited, forgetting windows")
		s.forgetWindows()
	}
}

func (s *Service) forgetWindows() {
	s.mu.Lock()
	s.windows = make(map[string]*chart.Window)
	s.mu.Unlock()
}
