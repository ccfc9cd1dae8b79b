package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestSetupWritesConsoleAndFile(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	path := filepath.Join(t.TempDir(), "nested", "chartbridge.log")
	var console bytes.Buffer
	closer, err := Setup("warn", path, &console)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	slog.Info("supervisor hidden")
	slog.Warn("supervisor exit escalate", "pid", 7)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if strings.Contains(console.String(), "supervisor hidden") {
		t.Fatalf("info line logged at warn level: %q", console.String())
	}
	if !strings.Contains(console.String(), "pid=7") {
		t.Fatalf("console = %q; want warn line", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "supervisor exit escalate") {
		t.Fatalf("log file = %q; want warn line", data)
	}
}
