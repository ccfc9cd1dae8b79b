package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/config"
	"github.com/dgnsrekt/chartbridge/internal/engine"
	"github.com/dgnsrekt/chartbridge/internal/logging"
)

func main() {
	cfg, err := config.LoadRenderer()
	if err != nil {
		slog.Error("failed to load renderer config", "error", err)
		os.Exit(1)
	}

	// stdout is left to the controller's own log stream.
	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stderr)
	if err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}
	defer func() {
		if err := logCloser.Close(); err != nil {
			slog.Debug("log file close failed", "error", err)
		}
	}()

	slog.Info("chart_renderer config loaded",
		"browser_path", cfg.BrowserPath,
		"headless", cfg.Headless,
		"screens", len(cfg.Screens),
		"poll_interval_ms", cfg.PollIntervalMS,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	newEngine := func(emit func(string)) bridge.Engine {
		return engine.New(engine.Config{
			ExecPath:    cfg.BrowserPath,
			UserDataDir: cfg.UserDataDir,
			IndexURL:    cfg.IndexURL,
			Headless:    cfg.Headless,
			Screens:     cfg.Screens,
		}, emit)
	}
	if err := bridge.RunRenderer(ctx, newEngine, bridge.WithPollInterval(cfg.PollInterval())); err != nil {
		slog.Error("chart_renderer stopped with error", "error", err)
		stop()
		if err := logCloser.Close(); err != nil {
			_, _ = io.WriteString(os.Stderr, "log file close failed: "+err.Error()+"\n")
		}
		os.Exit(1)
	}
	slog.Info("chart_renderer stopped")
}
