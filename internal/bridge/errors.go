package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const (
	CodeValidation     = "VALIDATION"
	CodeStartTimeout   = "START_TIMEOUT"
	CodeQueueFull      = "QUEUE_FULL"
	CodeReturnTimeout  = "RETURN_TIMEOUT"
	CodeNoWindows      = "NO_WINDOWS"
	CodeUnknownWindow  = "UNKNOWN_WINDOW"
	CodeAlreadyStarted = "ALREADY_STARTED"
	CodeRendererExited = "RENDERER_EXITED"
	CodeTeardown       = "TEARDOWN"
)

// CodedError is a typed error used for stable mapping at the API edge.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries a CodedError with the given code.
func IsCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// ScriptError is the structured diagnostic of a failed script evaluation.
type ScriptError struct {
	Name    string `json:"name"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// ScriptException is the opaque failure string reported by the engine.
type ScriptException struct {
	Raw string
}

func (e *ScriptException) Error() string { return e.Raw }

// ScriptingError is returned to callers when an evaluated script throws.
type ScriptingError struct {
	Script string
	Diag   ScriptError
}

func (e *ScriptingError) Error() string {
	return fmt.Sprintf("\n\nscript -> '%s',\nerror -> %s[%d:%d]\n%s",
		e.Script, e.Diag.Name, e.Diag.Line, e.Diag.Column, e.Diag.Message)
}

var (
	errNamePattern    = regexp.MustCompile(`['"]name['"]:\s*(?:'([^']+)'|"([^"]+)")`)
	errLinePattern    = regexp.MustCompile(`['"]line['"]:\s*(\d+)`)
	errColumnPattern  = regexp.MustCompile(`['"]column['"]:\s*(\d+)`)
	errMessagePattern = regexp.MustCompile(`['"]message['"]:\s*(?:'([^']+)'|"([^"]+)")`)
)

// ParseScriptError decodes an engine exception string. Strict JSON is tried
// first; otherwise each field is extracted on its own and unmatched fields
// default to Unknown, 0, 0 and the raw string. It never fails.
func ParseScriptError(raw string) ScriptError {
	var strict struct {
		Name    *string `json:"name"`
		Line    *int    `json:"line"`
		Column  *int    `json:"column"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &strict); err == nil {
		out := ScriptError{Name: "Unknown", Message: raw}
		if strict.Name != nil {
			out.Name = *strict.Name
		}
		if strict.Line != nil {
			out.Line = *strict.Line
		}
		if strict.Column != nil {
			out.Column = *strict.Column
		}
		if strict.Message != nil {
			out.Message = *strict.Message
		}
		return out
	}

	out := ScriptError{Name: "Unknown", Message: raw}
	if v, ok := quotedField(errNamePattern, raw); ok {
		out.Name = v
	}
	if m := errLinePattern.FindStringSubmatch(raw); m != nil {
		out.Line = atoiOrZero(m[1])
	}
	if m := errColumnPattern.FindStringSubmatch(raw); m != nil {
		out.Column = atoiOrZero(m[1])
	}
	if v, ok := quotedField(errMessagePattern, raw); ok {
		out.Message = v
	}
	return out
}

// quotedField returns whichever quote-style group of re matched.
func quotedField(re *regexp.Regexp, raw string) (string, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
