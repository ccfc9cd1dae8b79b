package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		msg      string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{msg: "click_~_a;;;b", wantName: "click", wantArgs: []string{"a", "b"}},
		{msg: "search_~_AAPL", wantName: "search", wantArgs: []string{"AAPL"}},
		{msg: "close", wantName: "close"},
		{msg: "close_~_", wantName: "close"},
		{msg: "range_~_;;;2", wantName: "range", wantArgs: []string{"", "2"}},
		{msg: "_~_a", wantErr: true},
		{msg: "", wantErr: true},
	}
	for _, tt := range tests {
		name, args, err := DecodeEvent(tt.msg)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("DecodeEvent(%q) error = nil; want error", tt.msg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DecodeEvent(%q) error = %v", tt.msg, err)
		}
		if name != tt.wantName {
			t.Fatalf("DecodeEvent(%q) name = %q; want %q", tt.msg, name, tt.wantName)
		}
		if strings.Join(args, "|") != strings.Join(tt.wantArgs, "|") || len(args) != len(tt.wantArgs) {
			t.Fatalf("DecodeEvent(%q) args = %q; want %q", tt.msg, args, tt.wantArgs)
		}
	}
}

func TestEncodeEvent(t *testing.T) {
	if got := EncodeEvent("click", "a", "b"); got != "click_~_a;;;b" {
		t.Fatalf("EncodeEvent() = %q; want click_~_a;;;b", got)
	}
	name, args, err := DecodeEvent(EncodeEvent("save"))
	if err != nil || name != "save" || args != nil {
		t.Fatalf("DecodeEvent(EncodeEvent(save)) = %q, %q, %v", name, args, err)
	}
}

func TestCommandAddressed(t *testing.T) {
	if !evaluateCommand(1, "x", false, 0).Addressed() {
		t.Fatalf("evaluate command not addressed")
	}
	if startCommand(true).Addressed() || stopCommand().Addressed() {
		t.Fatalf("lifecycle commands reported as addressed")
	}
}

func TestQueueFIFOAndBackpressure(t *testing.T) {
	q := NewQueue[int]("test", 2)
	ctx := context.Background()
	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("Put(1) error = %v", err)
	}
	if !q.TryPut(2) {
		t.Fatalf("TryPut(2) = false; want true")
	}
	if q.TryPut(3) {
		t.Fatalf("TryPut(3) on full queue = true")
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := q.Put(short, 3)
	if !IsCode(err, CodeQueueFull) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Put() on full queue error = %v; want %s wrapping deadline", err, CodeQueueFull)
	}

	for _, want := range []int{1, 2} {
		got, err := q.Get(ctx)
		if err != nil || got != want {
			t.Fatalf("Get() = %d, %v; want %d", got, err, want)
		}
	}
	if _, ok := q.TryGet(); ok {
		t.Fatalf("TryGet() on empty queue = true")
	}

	q.TryPut(4)
	q.TryPut(5)
	if n := q.Drain(); n != 2 || q.Len() != 0 {
		t.Fatalf("Drain() = %d, Len() = %d; want 2, 0", n, q.Len())
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	c := s.C()
	select {
	case <-c:
		t.Fatalf("fresh signal is set")
	default:
	}

	s.Set()
	s.Set()
	select {
	case <-c:
	default:
		t.Fatalf("waiter not released by Set")
	}
	if !s.IsSet() {
		t.Fatalf("IsSet() = false after Set")
	}

	s.Clear()
	if s.IsSet() {
		t.Fatalf("IsSet() = true after Clear")
	}
	select {
	case <-s.C():
		t.Fatalf("cleared signal still releases waiters")
	default:
	}
}

func TestStateMachineMovesForward(t *testing.T) {
	var m stateMachine
	if !m.advance(StateStarting) || !m.advance(StateRunning) {
		t.Fatalf("forward transitions rejected")
	}
	if m.advance(StateReady) {
		t.Fatalf("advance(ready) from running accepted")
	}
	if m.advanceFrom(StateReady, StateRunning) {
		t.Fatalf("advanceFrom(ready) accepted while running")
	}
	if got := m.get(); got != StateRunning {
		t.Fatalf("state = %s; want running", got)
	}
	if got := ProcessState(99).String(); got != "unknown" {
		t.Fatalf("String() = %q; want unknown", got)
	}
}
