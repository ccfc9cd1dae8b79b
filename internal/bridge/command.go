package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WindowHandle identifies one renderer-side window. Handles start at 1 and
// are never reused within a supervisor's lifetime.
type WindowHandle uint64

// CommandKind discriminates Command.
type CommandKind string

const (
	KindCreateWindow CommandKind = "create_window"
	KindStart        CommandKind = "start"
	KindStop         CommandKind = "stop"
	KindShow         CommandKind = "show"
	KindHide         CommandKind = "hide"
	KindEvaluate     CommandKind = "evaluate"
)

// WindowOptions describes a window to create. Nil X, Y and Screen let the
// engine choose.
type WindowOptions struct {
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	X        *int   `json:"x,omitempty" yaml:"x,omitempty"`
	Y        *int   `json:"y,omitempty" yaml:"y,omitempty"`
	Screen   *int   `json:"screen,omitempty" yaml:"screen,omitempty"`
	OnTop    bool   `json:"on_top,omitempty" yaml:"on_top,omitempty"`
	Maximize bool   `json:"maximize,omitempty" yaml:"maximize,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Command is a single controller to renderer directive. It is passed by
// value and never mutated after it is enqueued.
type Command struct {
	Kind        CommandKind    `json:"kind"`
	Window      WindowHandle   `json:"window,omitempty"`
	Create      *WindowOptions `json:"create,omitempty"`
	Debug       bool           `json:"debug,omitempty"`
	Script      string         `json:"script,omitempty"`
	WantsReturn bool           `json:"wants_return,omitempty"`
	Seq         uint64         `json:"seq,omitempty"`
}

// Addressed reports whether the command targets an existing window.
func (c Command) Addressed() bool {
	switch c.Kind {
	case KindShow, KindHide, KindEvaluate:
		return true
	}
	return false
}

func createWindowCommand(h WindowHandle, opts WindowOptions) Command {
	return Command{Kind: KindCreateWindow, Window: h, Create: &opts}
}

func startCommand(debug bool) Command { return Command{Kind: KindStart, Debug: debug} }

func stopCommand() Command { return Command{Kind: KindStop} }

func evaluateCommand(h WindowHandle, script string, wantsReturn bool, seq uint64) Command {
	return Command{Kind: KindEvaluate, Window: h, Script: script, WantsReturn: wantsReturn, Seq: seq}
}

// ReturnValue is the reply to an Evaluate command with WantsReturn set.
type ReturnValue struct {
	Seq   uint64          `json:"seq"`
	Value json.RawMessage `json:"value,omitempty"`
	Err   *ScriptError    `json:"error,omitempty"`
}

// ExitEvent is the reserved event emitted when the renderer stops. It can
// never be registered as a handler name.
const ExitEvent = "exit"

const (
	eventNameSep = "_~_"
	eventArgSep  = ";;;"
)

// EncodeEvent builds the wire form of a UI event: name_~_arg1;;;arg2.
func EncodeEvent(name string, args ...string) string {
	return name + eventNameSep + strings.Join(args, eventArgSep)
}

// DecodeEvent splits a UI event message into handler name and arguments.
func DecodeEvent(msg string) (string, []string, error) {
	name, rest, found := strings.Cut(msg, eventNameSep)
	if name == "" {
		return "", nil, fmt.Errorf("event message %q has no handler name", msg)
	}
	if !found || rest == "" {
		return name, nil, nil
	}
	return name, strings.Split(rest, eventArgSep), nil
}
