// Package browser owns the single Chrome tab a harvest run drives, and the
// Page abstraction the login and listing code talk to.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// pollInterval paces WaitFirstVisible.
const pollInterval = 250 * time.Millisecond

var (
	// ErrBrowserLaunch means no browser could be started. Fatal for a run.
	ErrBrowserLaunch = errors.New("browser launch failed")
	// ErrSettleTimeout is returned when the network did not go idle in time.
	// Callers treat it as "carry on with whatever is loaded".
	ErrSettleTimeout = errors.New("network did not settle")
	// ErrNoMatch is returned by element operations when no visible element
	// matches the locator.
	ErrNoMatch = errors.New("no visible element matches")
)

// Locator identifies an element: a CSS selector, optionally narrowed to
// elements whose text (or input value) contains Text, case-insensitively.
type Locator struct {
	CSS  string
	Text string
}

// CSS is shorthand for a selector-only Locator.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// WithText is shorthand for a selector narrowed by text.
func WithText(selector, text string) Locator {
	return Locator{CSS: selector, Text: text}
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return fmt.Sprintf("%s[text~=%q]", l.CSS, l.Text)
}

// Page is one browser tab. Every element operation acts on the first visible
// element matching the locator, in document order.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
	// Visible reports whether any element matching loc is visible.
	Visible(ctx context.Context, loc Locator) (bool, error)
	// Text returns the whitespace-collapsed text of the first visible match.
	Text(ctx context.Context, loc Locator) (string, error)
	// Attr returns an attribute of the first visible match.
	Attr(ctx context.Context, loc Locator, name string) (string, bool, error)
	// Fill types value into the first visible match.
	Fill(ctx context.Context, loc Locator, value string) error
	// Click clicks the first visible match.
	Click(ctx context.Context, loc Locator) error
	// WaitVisible blocks until loc is visible or timeout elapses.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	// WaitIdle blocks until network activity quiesces. On timeout it returns
	// ErrSettleTimeout.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	// Cookies returns the cookies visible to the current page.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// FirstVisible walks locators in order and returns the index of the first one
// with a visible match, or -1. Lookup errors on one locator (a selector the
// engine rejects, a transient evaluation failure) are skipped, not fatal; the
// last such error is returned only when nothing matched.
func FirstVisible(ctx context.Context, p Page, locators []Locator) (int, error) {
	var lastErr error
	for i, loc := range locators {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		ok, err := p.Visible(ctx, loc)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return i, nil
		}
	}
	return -1, lastErr
}

// WaitFirstVisible repeats FirstVisible until some locator matches or timeout
// elapses. It returns -1 with a nil error on timeout.
func WaitFirstVisible(ctx context.Context, p Page, locators []Locator, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		idx, err := FirstVisible(ctx, p, locators)
		if idx >= 0 {
			return idx, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ctxErr
		}
		if !time.Now().Before(deadline) {
			return -1, err
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(min(pollInterval, time.Until(deadline))):
		}
	}
}
