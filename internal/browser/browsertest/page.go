// Package browsertest provides an in-memory browser.Page backed by goquery,
// for testing login and listing flows without Chrome.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/jmylchreest/bidharvest/internal/browser"
)

// ErrNotFound is returned when navigating to a URL with no route.
var ErrNotFound = errors.New("browsertest: no route")

// SubmitFunc handles a form submission and returns the URL the browser ends
// up on. Returning "" leaves the page where it is.
type SubmitFunc func(form url.Values) (string, error)

// Page is a scripted browser.Page. Routes map absolute URLs to HTML; clicking
// a link follows its href, clicking a submit control inside a form calls
// Submit (or follows the form action when Submit is nil).
type Page struct {
	Routes   map[string]string
	Fallback func(rawURL string) (string, bool)
	Submit   SubmitFunc

	IdleErr       error
	ScreenshotErr error
	CookieJar     []*http.Cookie

	mu          sync.Mutex
	current     string
	doc         *goquery.Document
	navigations int
	clicks      []string
	screenshots int
}

var _ browser.Page = (*Page)(nil)

// New returns a Page serving routes.
func New(routes map[string]string) *Page {
	if routes == nil {
		routes = map[string]string{}
	}
	return &Page{Routes: routes}
}

// Navigations counts page loads, whether from Navigate or a click.
func (p *Page) Navigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigations
}

// Clicks lists the locators clicked, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Screenshots counts successful screenshot captures.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

func (p *Page) load(rawURL string) error {
	html, ok := p.Routes[rawURL]
	if !ok && p.Fallback != nil {
		html, ok = p.Fallback(rawURL)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	p.current = rawURL
	p.doc = doc
	p.navigations++
	return nil
}

func (p *Page) resolve(ref string) string {
	base, err := url.Parse(p.current)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(rawURL)
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", nil
	}
	return goquery.OuterHtml(p.doc.Selection)
}

// find returns the first visible element matching loc, or an empty selection.
func (p *Page) find(loc browser.Locator) (*goquery.Selection, error) {
	sel, err := cascadia.Compile(loc.CSS)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", loc.CSS, err)
	}
	if p.doc == nil {
		return &goquery.Selection{}, nil
	}
	needle := strings.ToLower(loc.Text)
	var match *goquery.Selection
	p.doc.FindMatcher(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !Visible(s) {
			return true
		}
		if needle != "" {
			value, _ := s.Attr("value")
			hay := strings.ToLower(s.Text() + " " + value)
			if !strings.Contains(hay, needle) {
				return true
			}
		}
		match = s
		return false
	})
	if match == nil {
		return &goquery.Selection{}, nil
	}
	return match, nil
}

// Visible reports whether s would render: not hidden by attribute, by inline
// display/visibility style, or as a hidden input, on itself or any ancestor.
func Visible(s *goquery.Selection) bool {
	if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
		return false
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(n.AttrOr("style", ""), " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func (p *Page) Visible(_ context.Context, loc browser.Locator) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.find(loc)
	if err != nil {
		return false, err
	}
	return s.Length() > 0, nil
}

func (p *Page) mustFind(loc browser.Locator) (*goquery.Selection, error) {
	s, err := p.find(loc)
	if err != nil {
		return nil, err
	}
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoMatch, loc)
	}
	return s, nil
}

func (p *Page) Text(_ context.Context, loc browser.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.mustFind(loc)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(s.Text()), " "), nil
}

func (p *Page) Attr(_ context.Context, loc browser.Locator, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.mustFind(loc)
	if err != nil {
		return "", false, err
	}
	v, ok := s.Attr(name)
	return v, ok, nil
}

func (p *Page) Fill(_ context.Context, loc browser.Locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.mustFind(loc)
	if err != nil {
		return err
	}
	s.SetAttr("value", value)
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.mustFind(loc)
	if err != nil {
		return err
	}
	p.clicks = append(p.clicks, loc.String())

	if href, ok := s.Attr("href"); ok && goquery.NodeName(s) == "a" {
		if href == "" || strings.HasPrefix(href, "#") {
			return nil
		}
		return p.load(p.resolve(href))
	}

	form := s.Closest("form")
	if form.Length() == 0 || !isSubmit(s) {
		return nil
	}
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		key := in.AttrOr("name", in.AttrOr("id", ""))
		if key != "" {
			values.Add(key, in.AttrOr("value", ""))
		}
	})

	next := ""
	if p.Submit != nil {
		if next, err = p.Submit(values); err != nil {
			return err
		}
	} else if action := form.AttrOr("action", ""); action != "" {
		next = p.resolve(action)
	}
	if next == "" {
		return nil
	}
	return p.load(next)
}

func isSubmit(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "button":
		t := strings.ToLower(s.AttrOr("type", "submit"))
		return t == "submit"
	case "input":
		t := strings.ToLower(s.AttrOr("type", ""))
		return t == "submit" || t == "image"
	}
	return false
}

func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator, _ time.Duration) error {
	ok, err := p.Visible(ctx, loc)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrNoMatch, loc)
	}
	return nil
}

func (p *Page) WaitIdle(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.IdleErr
}

func (p *Page) Cookies(context.Context) ([]*http.Cookie, error) {
	return p.CookieJar, nil
}

// pngHeader is enough of a PNG for sinks that only write bytes.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.mu.Lock()
	p.screenshots++
	p.mu.Unlock()
	return append([]byte(nil), pngHeader...), nil
}
