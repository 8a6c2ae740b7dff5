package browsertest

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/jmylchreest/bidharvest/internal/browser"
)

const loginHTML = `<html><body>
<form action="/submitted">
  <input type="hidden" name="csrf" value="tok">
  <input name="username" id="username">
  <input type="password" name="password">
  <button type="submit">Sign in</button>
</form>
<div hidden><a href="/secret">secret</a></div>
<a href="/next">Next</a>
<a href="#">Anchor</a>
</body></html>`

func newLoginPage(t *testing.T) *Page {
	t.Helper()
	p := New(map[string]string{
		"https://portal.test/login":     loginHTML,
		"https://portal.test/next":      `<p>next</p>`,
		"https://portal.test/submitted": `<p>done</p>`,
	})
	if err := p.Navigate(context.Background(), "https://portal.test/login"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	return p
}

func TestPage_Visibility(t *testing.T) {
	p := newLoginPage(t)
	ctx := context.Background()

	tests := []struct {
		loc  browser.Locator
		want bool
	}{
		{browser.CSS("#username"), true},
		{browser.CSS("input[name=csrf]"), false},
		{browser.CSS("a[href='/secret']"), false},
		{browser.WithText("button", "sign in"), true},
		{browser.WithText("button", "log out"), false},
	}
	for _, tt := range tests {
		got, err := p.Visible(ctx, tt.loc)
		if err != nil {
			t.Fatalf("Visible(%s) error = %v", tt.loc, err)
		}
		if got != tt.want {
			t.Errorf("Visible(%s) = %v, want %v", tt.loc, got, tt.want)
		}
	}
}

func TestPage_ClickLinkNavigates(t *testing.T) {
	p := newLoginPage(t)
	ctx := context.Background()

	if err := p.Click(ctx, browser.WithText("a", "anchor")); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if p.Navigations() != 1 {
		t.Errorf("expected an in-page anchor not to navigate, got %d navigations", p.Navigations())
	}

	if err := p.Click(ctx, browser.WithText("a", "next")); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if u, _ := p.URL(ctx); u != "https://portal.test/next" {
		t.Errorf("expected /next, got %q", u)
	}
}

func TestPage_SubmitCollectsForm(t *testing.T) {
	p := newLoginPage(t)
	ctx := context.Background()

	var got url.Values
	p.Submit = func(form url.Values) (string, error) {
		got = form
		return "https://portal.test/next", nil
	}
	_ = p.Fill(ctx, browser.CSS("#username"), "alice")
	_ = p.Fill(ctx, browser.CSS("input[type=password]"), "s3cret")
	if err := p.Click(ctx, browser.CSS("button[type=submit]")); err != nil {
		t.Fatalf("Click() error = %v", err)
	}

	if got.Get("username") != "alice" || got.Get("password") != "s3cret" || got.Get("csrf") != "tok" {
		t.Errorf("unexpected form values %v", got)
	}
	if u, _ := p.URL(ctx); u != "https://portal.test/next" {
		t.Errorf("expected /next, got %q", u)
	}
}

func TestPage_SubmitFollowsActionByDefault(t *testing.T) {
	p := newLoginPage(t)
	ctx := context.Background()
	if err := p.Click(ctx, browser.CSS("button")); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if u, _ := p.URL(ctx); u != "https://portal.test/submitted" {
		t.Errorf("expected form action, got %q", u)
	}
}

func TestPage_Errors(t *testing.T) {
	p := newLoginPage(t)
	ctx := context.Background()

	if err := p.Navigate(ctx, "https://portal.test/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := p.Click(ctx, browser.CSS("#nope")); !errors.Is(err, browser.ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
	if _, err := p.Visible(ctx, browser.CSS("a[[")); err == nil {
		t.Error("expected an error for an invalid selector")
	}

	p.ScreenshotErr = errors.New("boom")
	if _, err := p.Screenshot(ctx); err == nil {
		t.Error("expected configured screenshot error")
	}
}
