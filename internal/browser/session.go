package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/bidharvest/internal/logger"
)

// DefaultUserAgent is a current desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// markAttr tags the element the last locate call resolved to, so chromedp's
// query-based actions can address it with a plain attribute selector.
const markAttr = "data-bidharvest"

var markSelector = "[" + markAttr + "]"

var errNotStarted = errors.New("browser session not started")

// Config controls how the browser is launched.
type Config struct {
	Headless          bool
	Stealth           bool
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	ExecPath          string
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
}

// DefaultConfig returns sensible defaults for an unattended run.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Stealth:           true,
		UserAgent:         DefaultUserAgent,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    10 * time.Second,
	}
}

// Session owns one Chrome process and one tab. It implements Page.
// A Session is not safe for concurrent use; a run drives it sequentially.
type Session struct {
	cfg Config

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	tracker  *activityTracker
	stopOnce sync.Once
}

var _ Page = (*Session)(nil)

// NewSession fills unset config fields from DefaultConfig. Nothing is launched
// until Start.
func NewSession(cfg Config) *Session {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = def.ElementTimeout
	}
	return &Session{cfg: cfg, tracker: newActivityTracker()}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(s.cfg.ViewportWidth, s.cfg.ViewportHeight),
	)
	if s.cfg.Stealth {
		opts = append(opts, stealthAllocatorFlags()...)
	}

	execPath := s.cfg.ExecPath
	if execPath == "" {
		execPath = FindChromePath()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return opts
}

// Start launches the browser and opens the tab. A launch failure is wrapped in
// ErrBrowserLaunch; the user agent and viewport overrides are best effort.
func (s *Session) Start(ctx context.Context) error {
	if s.tabCtx != nil {
		return nil
	}

	s.allocCtx, s.cancelAlloc = chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	s.tabCtx, s.cancelTab = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	chromedp.ListenTarget(s.tabCtx, s.tracker.observe)

	// The first Run allocates the browser and binds its lifetime to tabCtx, so
	// it must not be given a derived timeout context.
	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(s.tabCtx, network.Enable()) }()
	select {
	case err := <-launched:
		if err != nil {
			s.Stop()
			return fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}
	case <-ctx.Done():
		s.Stop()
		return fmt.Errorf("%w: %v", ErrBrowserLaunch, ctx.Err())
	}

	if err := s.run(ctx, s.cfg.ElementTimeout, emulation.SetUserAgentOverride(s.cfg.UserAgent)); err != nil {
		logger.Warn("could not apply user agent", "error", err)
	}
	viewport := emulation.SetDeviceMetricsOverride(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight), 1, false)
	if err := s.run(ctx, s.cfg.ElementTimeout, viewport); err != nil {
		logger.Warn("could not apply viewport", "error", err)
	}
	if s.cfg.Stealth {
		if err := s.run(ctx, s.cfg.ElementTimeout, injectStealth()); err != nil {
			logger.Warn("could not inject stealth script", "error", err)
		}
	}

	logger.Debug("browser session started",
		"headless", s.cfg.Headless,
		"stealth", s.cfg.Stealth,
		"viewport", fmt.Sprintf("%dx%d", s.cfg.ViewportWidth, s.cfg.ViewportHeight))
	return nil
}

// Stop closes the tab, then the browser. Safe to call more than once, and
// before or after a failed Start.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancelTab != nil {
			s.cancelTab()
		}
		if s.cancelAlloc != nil {
			s.cancelAlloc()
		}
		logger.Debug("browser session stopped")
	})
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.tabCtx == nil {
		return errNotStarted
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Location(&loc))
	return loc, err
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// locateScript marks the first visible element matching css (and containing
// text, when given) with markAttr. It evaluates to whether one was found.
const locateScript = `(function(css, text) {
  document.querySelectorAll('[%[1]s]').forEach(function(e) { e.removeAttribute('%[1]s'); });
  var needle = (text || '').toLowerCase();
  var els = document.querySelectorAll(css);
  for (var i = 0; i < els.length; i++) {
    var el = els[i];
    var style = window.getComputedStyle(el);
    var rect = el.getBoundingClientRect();
    if (style.display === 'none' || style.visibility === 'hidden' || (rect.width === 0 && rect.height === 0)) {
      continue;
    }
    if (needle) {
      var hay = ((el.innerText || '') + ' ' + (el.value || '')).toLowerCase();
      if (hay.indexOf(needle) < 0) {
        continue;
      }
    }
    el.setAttribute('%[1]s', '1');
    return true;
  }
  return false;
})(%[2]s, %[3]s)`

func (s *Session) locate(ctx context.Context, loc Locator) (bool, error) {
	css, err := json.Marshal(loc.CSS)
	if err != nil {
		return false, err
	}
	text, err := json.Marshal(loc.Text)
	if err != nil {
		return false, err
	}
	var found bool
	expr := fmt.Sprintf(locateScript, markAttr, css, text)
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("locate %s: %w", loc, err)
	}
	return found, nil
}

func (s *Session) mustLocate(ctx context.Context, loc Locator) error {
	found, err := s.locate(ctx, loc)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoMatch, loc)
	}
	return nil
}

func (s *Session) Visible(ctx context.Context, loc Locator) (bool, error) {
	return s.locate(ctx, loc)
}

func (s *Session) Text(ctx context.Context, loc Locator) (string, error) {
	if err := s.mustLocate(ctx, loc); err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Text(markSelector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (s *Session) Attr(ctx context.Context, loc Locator, name string) (string, bool, error) {
	if err := s.mustLocate(ctx, loc); err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.AttributeValue(markSelector, name, &value, &ok, chromedp.ByQuery))
	return value, ok, err
}

func (s *Session) Fill(ctx context.Context, loc Locator, value string) error {
	if err := s.mustLocate(ctx, loc); err != nil {
		return err
	}
	return s.run(ctx, s.cfg.ElementTimeout,
		chromedp.Focus(markSelector, chromedp.ByQuery),
		chromedp.SetValue(markSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(markSelector, value, chromedp.ByQuery),
	)
}

func (s *Session) Click(ctx context.Context, loc Locator) error {
	if err := s.mustLocate(ctx, loc); err != nil {
		return err
	}
	return s.run(ctx, s.cfg.ElementTimeout, chromedp.Click(markSelector, chromedp.ByQuery))
}

func (s *Session) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		found, err := s.locate(ctx, loc)
		if err == nil && found {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrNoMatch, loc, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	if s.tabCtx == nil {
		return errNotStarted
	}
	return s.tracker.wait(ctx, timeout)
}

func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return convertCookies(raw), nil
}

func convertCookies(raw []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// Session cookies report -1.
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, hc)
	}
	return out
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.CaptureScreenshot(&buf))
	return buf, err
}
