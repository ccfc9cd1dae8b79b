package config

import (
	"fmt"
	"os"

	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"gopkg.in/yaml.v3"
)

// WindowEntry describes a single chart window to create at startup.
type WindowEntry struct {
	Name                 string `yaml:"name"`
	bridge.WindowOptions `yaml:",inline"`
}

// WindowsConfig is the top-level YAML configuration for startup windows.
type WindowsConfig struct {
	Windows []WindowEntry `yaml:"windows"`
}

// LoadWindows reads and validates a windows YAML config file.
// Returns an os.ErrNotExist-wrapped error if the file is absent (caller
// silently skips in that case).
func LoadWindows(path string) (*WindowsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("windows config: %w", err)
	}
	var cfg WindowsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("windows config: %w", err)
	}
	if len(cfg.Windows) < 1 {
		return nil, fmt.Errorf("windows config: at least one window entry is required")
	}

	seen := make(map[string]bool, len(cfg.Windows))
	for i := range cfg.Windows {
		w := &cfg.Windows[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("window-%d", i+1)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("windows config: duplicate window name %q", w.Name)
		}
		seen[w.Name] = true
		if w.Width < 0 || w.Height < 0 {
			return nil, fmt.Errorf("windows config: windows[%d] has a negative size", i)
		}
		if !w.Maximize && (w.Width == 0 || w.Height == 0) {
			return nil, fmt.Errorf("windows config: windows[%d] needs width and height or maximize", i)
		}
	}
	return &cfg, nil
}
