// Package debugsink writes diagnostic screenshots at named checkpoints.
// Every failure is logged and swallowed.
package debugsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/logger"
)

// captureTimeout bounds a single screenshot.
const captureTimeout = 5 * time.Second

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// Sink writes PNGs into a directory created on first use. A nil Sink, or one
// with an empty directory, discards everything.
type Sink struct {
	dir string
	now func() time.Time

	mkdirOnce sync.Once
	mkdirErr  error
}

// New returns a Sink writing to dir, or nil when dir is empty.
func New(dir string) *Sink {
	if dir == "" {
		return nil
	}
	return &Sink{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Snapshot captures p and writes it under a name derived from checkpoint. It
// returns the written path, or "" if nothing was written.
func (s *Sink) Snapshot(ctx context.Context, p browser.Page, checkpoint string) string {
	if s == nil || s.dir == "" || p == nil {
		return ""
	}

	s.mkdirOnce.Do(func() {
		s.mkdirErr = os.MkdirAll(s.dir, 0o755)
	})
	if s.mkdirErr != nil {
		logger.Warn("debug sink unavailable", "dir", s.dir, "error", s.mkdirErr)
		return ""
	}

	captureCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()
	png, err := p.Screenshot(captureCtx)
	if err != nil {
		logger.Warn("debug screenshot failed", "checkpoint", checkpoint, "error", err)
		return ""
	}

	path := filepath.Join(s.dir, s.fileName(checkpoint))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logger.Warn("debug screenshot not written", "path", path, "error", err)
		return ""
	}
	logger.Debug("debug screenshot saved",
		"checkpoint", checkpoint,
		"path", path,
		"size", humanize.Bytes(uint64(len(png))))
	return path
}

func (s *Sink) fileName(checkpoint string) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(checkpoint), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "checkpoint"
	}
	return fmt.Sprintf("%s-%s-%s.png", s.now().UTC().Format("20060102T150405"), name, uuid.NewString()[:8])
}
