package auth

import (
	"context"
	"regexp"

	"github.com/jmylchreest/bidharvest/internal/browser"
)

// Locators are the ordered lookup lists for the login form.
type Locators struct {
	Username []browser.Locator
	Password []browser.Locator
	Submit   []browser.Locator
	Error    []browser.Locator
	// Markers are elements only present inside the authenticated area.
	Markers []browser.Locator
}

// DefaultLocators covers the usual spellings of a vendor login form.
func DefaultLocators() Locators {
	return Locators{
		Username: []browser.Locator{
			browser.CSS("input[name='username']"),
			browser.CSS("input[name='email']"),
			browser.CSS("input[type='email']"),
			browser.CSS("input[id*='user']"),
			browser.CSS("input[name*='user']"),
			browser.CSS("input[name*='login']"),
			browser.CSS("input[type='text']"),
		},
		Password: []browser.Locator{
			browser.CSS("input[type='password']"),
			browser.CSS("input[name='password']"),
			browser.CSS("input[name*='pass']"),
		},
		Submit: []browser.Locator{
			browser.WithText("button", "log in"),
			browser.WithText("button", "sign in"),
			browser.WithText("button", "login"),
			browser.CSS("button[type='submit']"),
			browser.CSS("input[type='submit']"),
			browser.CSS("#loginButton, #login-button, .login-button"),
		},
		Error: []browser.Locator{
			browser.CSS(".login-error"),
			browser.CSS(".validation-summary-errors"),
			browser.CSS(".alert-danger"),
			browser.CSS(".alert-error"),
			browser.CSS(".error-message"),
			browser.CSS("[role='alert']"),
			browser.CSS(".error"),
		},
		Markers: []browser.Locator{
			browser.WithText("a", "log out"),
			browser.WithText("a", "logout"),
			browser.WithText("a", "sign out"),
			browser.WithText("h1, h2, nav", "dashboard"),
			browser.CSS("#dashboard, .dashboard"),
			browser.WithText("a", "my bids"),
		},
	}
}

// Default URL patterns for the authenticated area and the login page.
var (
	DefaultAuthenticatedURL = regexp.MustCompile(`(?i)/(dashboard|home|account|vendor|bids?|portal)(/|\?|$)`)
	DefaultLoginURL         = regexp.MustCompile(`(?i)(login|signin|sign-in|logon)`)
)

// signal is one independent success check.
type signal struct {
	name  string
	check func(ctx context.Context) bool
}

// signals lists every success check. Any one passing is enough.
func (m *Machine) signals() []signal {
	out := []signal{{name: "url", check: m.urlSignal}}
	for _, marker := range m.cfg.Locators.Markers {
		out = append(out, signal{
			name: "marker " + marker.String(),
			check: func(ctx context.Context) bool {
				ok, err := m.page.Visible(ctx, marker)
				return err == nil && ok
			},
		})
	}
	return out
}

// urlSignal holds when the location is inside the authenticated area and is
// not the login page.
func (m *Machine) urlSignal(ctx context.Context) bool {
	if m.cfg.AuthenticatedURL == nil {
		return false
	}
	current, err := m.page.URL(ctx)
	if err != nil {
		return false
	}
	if !m.cfg.AuthenticatedURL.MatchString(current) {
		return false
	}
	return m.cfg.LoginURLPattern == nil || !m.cfg.LoginURLPattern.MatchString(current)
}

func (m *Machine) verify(ctx context.Context) (string, bool) {
	for _, s := range m.signals() {
		if s.check(ctx) {
			return s.name, true
		}
	}
	return "", false
}
