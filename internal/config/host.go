package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

// HostConfig holds configuration for the chartbridge controller binary.
type HostConfig struct {
	BindAddr          string
	BindCandidates    []string
	BindAutoFallback  bool
	LogLevel          string
	LogFile           string
	RendererPath      string
	WindowsConfigPath string
	Debug             bool

	SubmitTimeoutMS     int
	ReturnTimeoutMS     int
	StartTimeoutMS      int
	StopJoinTimeoutMS   int
	TermJoinTimeoutMS   int
	LinkAcceptTimeoutMS int
	PumpIntervalMS      int
	QueueCapacity       int
}

// LoadHost reads controller configuration from environment variables and
// an optional .env file.
func LoadHost() (*HostConfig, error) {
	loadDotEnv()

	cfg := &HostConfig{
		BindAddr:          getEnvOrDefault("CHARTBRIDGE_BIND_ADDR", "127.0.0.1:8190"),
		BindCandidates:    getEnvListOrDefault("CHARTBRIDGE_BIND_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		BindAutoFallback:  getEnvBoolOrDefault("CHARTBRIDGE_BIND_AUTO_FALLBACK", true),
		LogLevel:          strings.ToLower(getEnvOrDefault("CHARTBRIDGE_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("CHARTBRIDGE_LOG_FILE", "logs/chartbridge.log"),
		RendererPath:      getEnvOrDefault("CHARTBRIDGE_RENDERER_PATH", ""),
		WindowsConfigPath: getEnvOrDefault("CHARTBRIDGE_WINDOWS_CONFIG", "./config/windows.yaml"),
		Debug:             getEnvBoolOrDefault("CHARTBRIDGE_DEBUG", false),

		SubmitTimeoutMS:     getEnvIntOrDefault("CHARTBRIDGE_SUBMIT_TIMEOUT_MS", 5000),
		ReturnTimeoutMS:     getEnvIntOrDefault("CHARTBRIDGE_RETURN_TIMEOUT_MS", 5000),
		StartTimeoutMS:      getEnvIntOrDefault("CHARTBRIDGE_START_TIMEOUT_MS", 5000),
		StopJoinTimeoutMS:   getEnvIntOrDefault("CHARTBRIDGE_STOP_JOIN_TIMEOUT_MS", 2000),
		TermJoinTimeoutMS:   getEnvIntOrDefault("CHARTBRIDGE_TERM_JOIN_TIMEOUT_MS", 1000),
		LinkAcceptTimeoutMS: getEnvIntOrDefault("CHARTBRIDGE_LINK_ACCEPT_TIMEOUT_MS", 10000),
		PumpIntervalMS:      getEnvIntOrDefault("CHARTBRIDGE_PUMP_INTERVAL_MS", 50),
		QueueCapacity:       getEnvIntOrDefault("CHARTBRIDGE_QUEUE_CAPACITY", 1024),
	}

	cfg.SubmitTimeoutMS = atLeast(cfg.SubmitTimeoutMS, 100)
	cfg.ReturnTimeoutMS = atLeast(cfg.ReturnTimeoutMS, 100)
	cfg.StartTimeoutMS = atLeast(cfg.StartTimeoutMS, 500)
	cfg.StopJoinTimeoutMS = atLeast(cfg.StopJoinTimeoutMS, 100)
	cfg.TermJoinTimeoutMS = atLeast(cfg.TermJoinTimeoutMS, 100)
	cfg.LinkAcceptTimeoutMS = atLeast(cfg.LinkAcceptTimeoutMS, 1000)
	cfg.PumpIntervalMS = atLeast(cfg.PumpIntervalMS, 1)
	cfg.QueueCapacity = atLeast(cfg.QueueCapacity, 16)
	return cfg, nil
}

// SupervisorOptions converts the timeouts into bridge options.
func (c *HostConfig) SupervisorOptions() bridge.Options {
	return bridge.Options{
		SubmitTimeout:   ms(c.SubmitTimeoutMS),
		ReturnTimeout:   ms(c.ReturnTimeoutMS),
		StartTimeout:    ms(c.StartTimeoutMS),
		StopJoinTimeout: ms(c.StopJoinTimeoutMS),
		TermJoinTimeout: ms(c.TermJoinTimeoutMS),
		QueueCapacity:   c.QueueCapacity,
		Debug:           c.Debug,
	}
}

func (c *HostConfig) PumpInterval() time.Duration { return ms(c.PumpIntervalMS) }

func (c *HostConfig) LinkAcceptTimeout() time.Duration { return ms(c.LinkAcceptTimeoutMS) }

// ResolveRendererPath returns the configured renderer binary, or
// chart_renderer next to the running executable.
func (c *HostConfig) ResolveRendererPath() (string, error) {
	if c.RendererPath != "" {
		return c.RendererPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), "chart_renderer"), nil
}
