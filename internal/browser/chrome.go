package browser

import (
	"os/exec"
	"path/filepath"

	"github.com/jmylchreest/bidharvest/internal/logger"
)

// chromeCandidates lists binary names and install paths tried in order.
var chromeCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/headless-shell/headless-shell",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// FindChromePath returns the first Chrome/Chromium binary found, or "" to let
// chromedp fall back to its own lookup.
func FindChromePath() string {
	for _, name := range chromeCandidates {
		path, err := lookPath(name)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		logger.Debug("found chrome binary", "candidate", name, "path", path)
		return path
	}
	logger.Warn("no chrome binary found on PATH or in known locations")
	return ""
}
