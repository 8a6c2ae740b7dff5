// Package auth drives the portal's login form.
//
// A login moves through Unauthenticated, FormLocated, CredentialsFilled and
// Submitted before ending in Authenticated or Rejected. Every element lookup
// uses an ordered locator list where the first visible match wins, and success
// is decided by a set of independent checks of which any one suffices.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/debugsink"
	"github.com/jmylchreest/bidharvest/internal/logger"
)

var (
	// ErrMissingCredentials is a precondition failure: login was required but
	// no usable credential pair was supplied.
	ErrMissingCredentials = errors.New("credentials are required")
	// ErrAuthentication is wrapped by every RejectedError.
	ErrAuthentication = errors.New("authentication failed")
)

// State is a step of the login flow.
type State int

const (
	Unauthenticated State = iota
	FormLocated
	CredentialsFilled
	Submitted
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case FormLocated:
		return "form_located"
	case CredentialsFilled:
		return "credentials_filled"
	case Submitted:
		return "submitted"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Credentials is a plaintext username/password pair held only in memory.
// It never renders its password, in logs or via fmt.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both halves are present.
func (c *Credentials) Valid() bool {
	return c != nil && strings.TrimSpace(c.Username) != "" && c.Password != ""
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("username", logger.Secret(c.Username)),
		slog.Any("password", logger.Secret(c.Password)),
	)
}

func (c Credentials) String() string {
	return "[credentials]"
}

// RejectedError reports where and why a login failed.
type RejectedError struct {
	// From is the last state reached before rejection.
	From   State
	Reason string
	// Snapshot is the debug screenshot path, if one was written.
	Snapshot string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("login rejected after %s: %s", e.From, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrAuthentication
}

// Config describes the login surface.
type Config struct {
	LoginURL string
	// AuthenticatedURL matches locations inside the logged-in area.
	AuthenticatedURL *regexp.Regexp
	// LoginURLPattern matches the login page itself.
	LoginURLPattern *regexp.Regexp
	Locators        Locators
	// FormTimeout bounds the wait for the username field.
	FormTimeout time.Duration
	// SubmitSettle bounds the idle wait after submitting. Expiry is not a
	// failure.
	SubmitSettle time.Duration
}

// Machine runs one login against a page.
type Machine struct {
	page  browser.Page
	cfg   Config
	sink  *debugsink.Sink
	state State
	trail []State
}

// New returns a Machine in the Unauthenticated state. sink may be nil.
func New(page browser.Page, cfg Config, sink *debugsink.Sink) *Machine {
	if cfg.FormTimeout <= 0 {
		cfg.FormTimeout = 10 * time.Second
	}
	if cfg.SubmitSettle <= 0 {
		cfg.SubmitSettle = 20 * time.Second
	}
	if len(cfg.Locators.Username) == 0 {
		cfg.Locators = DefaultLocators()
	}
	return &Machine{page: page, cfg: cfg, sink: sink, state: Unauthenticated, trail: []State{Unauthenticated}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Trail returns every state entered, in order.
func (m *Machine) Trail() []State { return append([]State(nil), m.trail...) }

func (m *Machine) enter(s State) {
	logger.Debug("auth transition", "from", m.state, "to", s)
	m.state = s
	m.trail = append(m.trail, s)
}

// reject moves to Rejected, captures a snapshot and returns the error to hand
// back to the caller.
func (m *Machine) reject(ctx context.Context, reason string) error {
	from := m.state
	m.enter(Rejected)
	shot := m.sink.Snapshot(ctx, m.page, "auth-rejected-"+from.String())
	logger.Warn("login rejected", "after", from, "reason", reason, "snapshot", shot)
	return &RejectedError{From: from, Reason: reason, Snapshot: shot}
}

// Login runs the whole flow. It returns ErrMissingCredentials before touching
// the page when creds is unusable, and a *RejectedError for every other
// failure.
func (m *Machine) Login(ctx context.Context, creds *Credentials) error {
	if !creds.Valid() {
		return ErrMissingCredentials
	}
	logger.Info("logging in", "url", m.cfg.LoginURL, "credentials", *creds)

	if m.cfg.LoginURL != "" {
		if err := m.page.Navigate(ctx, m.cfg.LoginURL); err != nil {
			return m.reject(ctx, fmt.Sprintf("login page unreachable: %v", err))
		}
	}

	loc := m.cfg.Locators
	userIdx, err := browser.WaitFirstVisible(ctx, m.page, loc.Username, m.cfg.FormTimeout)
	if userIdx < 0 {
		return m.reject(ctx, notFound("username field", err))
	}
	passIdx, err := browser.FirstVisible(ctx, m.page, loc.Password)
	if passIdx < 0 {
		return m.reject(ctx, notFound("password field", err))
	}
	m.enter(FormLocated)

	if err := m.page.Fill(ctx, loc.Username[userIdx], creds.Username); err != nil {
		return m.reject(ctx, fmt.Sprintf("could not fill username: %v", err))
	}
	if err := m.page.Fill(ctx, loc.Password[passIdx], creds.Password); err != nil {
		return m.reject(ctx, "could not fill password")
	}
	m.enter(CredentialsFilled)

	submitIdx, err := browser.FirstVisible(ctx, m.page, loc.Submit)
	if submitIdx < 0 {
		return m.reject(ctx, notFound("submit control", err))
	}
	if err := m.page.Click(ctx, loc.Submit[submitIdx]); err != nil {
		return m.reject(ctx, fmt.Sprintf("could not submit: %v", err))
	}
	m.enter(Submitted)

	if err := m.page.WaitIdle(ctx, m.cfg.SubmitSettle); err != nil {
		if ctx.Err() != nil {
			return m.reject(ctx, ctx.Err().Error())
		}
		logger.Warn("post-login settle incomplete, verifying anyway", "error", err)
	}

	if signal, ok := m.verify(ctx); ok {
		m.enter(Authenticated)
		logger.Info("login succeeded", "signal", signal)
		return nil
	}
	return m.reject(ctx, m.errorMessage(ctx))
}

func notFound(what string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s not found (last lookup error: %v)", what, err)
	}
	return what + " not found"
}

// errorMessage returns the first visible error text, or a generic reason.
func (m *Machine) errorMessage(ctx context.Context) string {
	idx, _ := browser.FirstVisible(ctx, m.page, m.cfg.Locators.Error)
	if idx >= 0 {
		if text, err := m.page.Text(ctx, m.cfg.Locators.Error[idx]); err == nil && text != "" {
			return text
		}
	}
	return "unknown login error"
}
