package engine

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"
)

// detectBrowser finds an available Chrome/Chromium binary. An explicit path
// wins when it exists.
func detectBrowser(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("browser path %s: %w", explicit, err)
		}
		return explicit, nil
	}
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried chromium-browser, chromium, google-chrome)")
}

// allocatorOptions builds the chromedp launch flags for one renderer run.
func (e *Engine) allocatorOptions(browserPath string, debug bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.ExecPath(browserPath),
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-crash-reporter", true),
	)
	if e.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(e.cfg.UserDataDir))
	}
	if debug {
		opts = append(opts, chromedp.Flag("auto-open-devtools-for-tabs", true))
	}
	return opts
}
