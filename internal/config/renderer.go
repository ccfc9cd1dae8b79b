package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
)

// RendererConfig holds configuration for the chart_renderer binary.
type RendererConfig struct {
	BrowserPath    string
	UserDataDir    string
	IndexURL       string
	Headless       bool
	Screens        []bridge.Screen
	PollIntervalMS int
	LogLevel       string
	LogFile        string
}

// LoadRenderer reads renderer configuration. Screens come from
// CHARTBRIDGE_SCREENS as a comma separated WIDTHxHEIGHT list, primary first.
func LoadRenderer() (*RendererConfig, error) {
	loadDotEnv()

	screens, err := parseScreens(getEnvOrDefault("CHARTBRIDGE_SCREENS", "1920x1080"))
	if err != nil {
		return nil, err
	}
	cfg := &RendererConfig{
		BrowserPath:    getEnvOrDefault("CHARTBRIDGE_BROWSER_PATH", ""),
		UserDataDir:    getEnvOrDefault("CHARTBRIDGE_USER_DATA_DIR", ""),
		IndexURL:       getEnvOrDefault("CHARTBRIDGE_INDEX_URL", ""),
		Headless:       getEnvBoolOrDefault("CHARTBRIDGE_HEADLESS", false),
		Screens:        screens,
		PollIntervalMS: atLeast(getEnvIntOrDefault("CHARTBRIDGE_POLL_INTERVAL_MS", 1000), 10),
		LogLevel:       strings.ToLower(getEnvOrDefault("CHARTBRIDGE_LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("CHARTBRIDGE_RENDERER_LOG_FILE", "logs/chart_renderer.log"),
	}
	return cfg, nil
}

func (c *RendererConfig) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

func parseScreens(raw string) ([]bridge.Screen, error) {
	var screens []bridge.Screen
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		w, h, ok := strings.Cut(strings.ToLower(item), "x")
		if !ok {
			return nil, fmt.Errorf("screens config: %q is not WIDTHxHEIGHT", item)
		}
		width, errW := strconv.Atoi(w)
		height, errH := strconv.Atoi(h)
		if errW != nil || errH != nil || width <= 0 || height <= 0 {
			return nil, fmt.Errorf("screens config: %q is not WIDTHxHEIGHT", item)
		}
		screens = append(screens, bridge.Screen{Width: width, Height: height})
	}
	if len(screens) == 0 {
		return nil, fmt.Errorf("screens config: at least one screen is required")
	}
	return screens, nil
}
