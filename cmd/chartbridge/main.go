package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/chartbridge/internal/api"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/config"
	"github.com/dgnsrekt/chartbridge/internal/controller"
	"github.com/dgnsrekt/chartbridge/internal/logging"
	"github.com/dgnsrekt/chartbridge/internal/netutil"
	"github.com/dgnsrekt/chartbridge/internal/relay"
)

func main() {
	cfg, err := config.LoadHost()
	if err != nil {
		slog.Error("failed to load host config", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stdout)
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

	rendererPath, err := cfg.ResolveRendererPath()
	if err != nil {
		slog.Error("failed to resolve renderer binary", "error", err)
		os.Exit(1)
	}

	slog.Info("chartbridge config loaded",
		"bind_addr", cfg.BindAddr,
		"bind_auto_fallback", cfg.BindAutoFallback,
		"bind_candidates", cfg.BindCandidates,
		"renderer_path", rendererPath,
		"windows_config", cfg.WindowsConfigPath,
		"debug", cfg.Debug,
		"return_timeout_ms", cfg.ReturnTimeoutMS,
		"start_timeout_ms", cfg.StartTimeoutMS,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.BindAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	sup := bridge.NewSupervisor(
		bridge.NewExecProcess(bridge.ExecConfig{Path: rendererPath, AcceptTimeout: cfg.LinkAcceptTimeout()}),
		bridge.WithOptions(cfg.SupervisorOptions()),
	)
	reg := bridge.NewRegistry()
	broker := relay.NewBroker()
	reg.Observe(broker.Observe)
	svc := controller.NewService(sup, reg, bridge.WithPumpInterval(cfg.PumpInterval()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		exitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := svc.Exit(exitCtx); err != nil {
			slog.Error("renderer exit failed", "error", err)
		}
	}()

	created, err := createConfiguredWindows(ctx, svc, cfg.WindowsConfigPath)
	if err != nil {
		slog.Error("failed to create configured windows", "path", cfg.WindowsConfigPath, "error", err)
		return
	}
	if created > 0 {
		if _, err := svc.Start(ctx); err != nil {
			slog.Error("renderer start failed", "windows", created, "error", err)
			return
		}
		slog.Info("renderer started", "windows", created)
	}

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("chartbridge listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("chartbridge shutting down")
	case err := <-serveErr:
		slog.Error("chartbridge server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("chartbridge shutdown failed", "error", err)
	}
}

// createConfiguredWindows creates the windows listed in the YAML file. A
// missing file is not an error.
func createConfiguredWindows(ctx context.Context, svc *controller.Service, path string) (int, error) {
	wcfg, err := config.LoadWindows(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("no windows config, waiting for API requests", "path", path)
			return 0, nil
		}
		return 0, err
	}
	for _, entry := range wcfg.Windows {
		info, err := svc.CreateWindow(ctx, entry.Name, entry.WindowOptions)
		if err != nil {
			return 0, err
		}
		slog.Info("window created", "name", info.Name, "handle", info.Handle)
	}
	return len(wcfg.Windows), nil
}
