// Package listing walks the portal's paginated bid listing and hands every
// page to the row extractor.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/debugsink"
	"github.com/jmylchreest/bidharvest/internal/extract"
	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// MaxPageIterations caps how many listing pages one run visits, guarding
// against cyclic or endless pagination.
const MaxPageIterations = 50

// Locators are the ordered lookup lists for the listing surface.
type Locators struct {
	ViewListings []browser.Locator
	Search       []browser.Locator
	Next         []browser.Locator
}

// DefaultLocators covers common listing navigation markup.
func DefaultLocators() Locators {
	return Locators{
		ViewListings: []browser.Locator{
			browser.WithText("a", "view bids"),
			browser.WithText("a", "open bids"),
			browser.WithText("a", "view listings"),
			browser.WithText("a", "bid opportunities"),
			browser.CSS("a[href*='listings']"),
			browser.CSS("a[href*='bid-search']"),
		},
		Search: []browser.Locator{
			browser.WithText("button", "search"),
			browser.CSS("input[type='submit'][value*='Search']"),
			browser.CSS("#searchButton, #search-button, .search-button"),
		},
		Next: []browser.Locator{
			browser.CSS("a[rel='next']"),
			browser.WithText("a", "next"),
			browser.CSS(".pagination .next a, li.next a, a.next"),
			browser.WithText("a", "›"),
			browser.WithText("a", "»"),
		},
	}
}

// Config describes how to reach the listing.
type Config struct {
	// RootURL is opened first; the view-listings link is looked for there.
	RootURL string
	// SearchURL and ListURL are direct fallbacks, tried in that order.
	SearchURL     string
	ListURL       string
	Locators      Locators
	SettleTimeout time.Duration
	// SettleDelay is a fixed pause after each page change.
	SettleDelay time.Duration
}

// Stats summarises one traversal.
type Stats struct {
	extract.Tally
	Pages      int
	PageErrors int
	// Truncated is set when MaxPageIterations stopped the walk.
	Truncated  bool
	StopReason string
}

// Traverser drives one page through the listing.
type Traverser struct {
	page      browser.Page
	extractor *extract.Extractor
	cfg       Config
	sink      *debugsink.Sink
	sleep     func(context.Context, time.Duration) error
}

// New returns a Traverser. sink may be nil.
func New(page browser.Page, extractor *extract.Extractor, cfg Config, sink *debugsink.Sink) *Traverser {
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 15 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if len(cfg.Locators.Next) == 0 {
		cfg.Locators = DefaultLocators()
	}
	return &Traverser{page: page, extractor: extractor, cfg: cfg, sink: sink, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run opens the listing and walks its pages in served order. It never fails:
// navigation and page errors end the walk early and whatever was collected so
// far is returned.
func (t *Traverser) Run(ctx context.Context) ([]bid.ExtractedBid, Stats) {
	var stats Stats
	if err := t.open(ctx); err != nil {
		stats.PageErrors++
		stats.StopReason = err.Error()
		logger.Error("could not reach listing", "error", err)
		t.sink.Snapshot(ctx, t.page, "listing-unreachable")
		return nil, stats
	}

	var all []bid.ExtractedBid
	for i := 0; i < MaxPageIterations; i++ {
		bids, err := t.extractPage(ctx, &stats)
		if err != nil {
			stats.PageErrors++
			stats.StopReason = err.Error()
			logger.Warn("listing page failed, keeping earlier pages", "page", i+1, "error", err)
			t.sink.Snapshot(ctx, t.page, fmt.Sprintf("listing-page-%d-failed", i+1))
			break
		}
		all = append(all, bids...)
		logger.Info("listing page extracted", "page", i+1, "bids", len(bids), "total", len(all))

		next, ok := t.nextControl(ctx)
		if !ok {
			stats.StopReason = "no next page"
			break
		}
		if i+1 == MaxPageIterations {
			stats.Truncated = true
			stats.StopReason = fmt.Sprintf("stopped at %d pages", MaxPageIterations)
			logger.Warn("page limit reached, more pages were offered", "limit", MaxPageIterations)
			break
		}
		if err := t.advance(ctx, next); err != nil {
			stats.PageErrors++
			stats.StopReason = err.Error()
			logger.Warn("could not follow next page", "page", i+1, "error", err)
			break
		}
	}
	return all, stats
}

// extractPage reads the current page. A panic inside extraction is reported
// as a page error.
func (t *Traverser) extractPage(ctx context.Context, stats *Stats) (bids []bid.ExtractedBid, err error) {
	defer func() {
		if r := recover(); r != nil {
			bids, err = nil, fmt.Errorf("panic extracting page: %v", r)
		}
	}()

	html, err := t.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	current, err := t.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("read location: %w", err)
	}
	bids, tally, err := t.extractor.Page(html, current)
	if err != nil {
		return nil, err
	}
	stats.Pages++
	stats.Tally.Add(tally)
	return bids, nil
}

// open reaches the first listing page: the view-listings link if one is
// visible, else SearchURL, else ListURL. A visible search trigger is then
// invoked.
func (t *Traverser) open(ctx context.Context) error {
	if t.cfg.RootURL != "" {
		if err := t.page.Navigate(ctx, t.cfg.RootURL); err != nil {
			logger.Warn("listing root unreachable", "url", t.cfg.RootURL, "error", err)
		}
	}

	if err := t.followViewLink(ctx); err != nil {
		logger.Debug("no view-listings link, opening listing directly", "reason", err)
		if err := t.openDirect(ctx); err != nil {
			return fmt.Errorf("listing unreachable: %w", err)
		}
	}
	t.settle(ctx, "listing")

	if idx, _ := browser.FirstVisible(ctx, t.page, t.cfg.Locators.Search); idx >= 0 {
		if err := t.page.Click(ctx, t.cfg.Locators.Search[idx]); err != nil {
			logger.Warn("search trigger failed, using listing as loaded", "error", err)
		} else {
			t.settle(ctx, "search")
		}
	}
	return nil
}

// openDirect navigates to SearchURL, falling back to ListURL.
func (t *Traverser) openDirect(ctx context.Context) error {
	var errs []error
	for _, u := range []string{t.cfg.SearchURL, t.cfg.ListURL} {
		if u == "" {
			continue
		}
		err := t.page.Navigate(ctx, u)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("no listing URL configured")
	}
	return errors.Join(errs...)
}

var errNoViewLink = errors.New("no view-listings link")

func (t *Traverser) followViewLink(ctx context.Context) error {
	idx, err := browser.FirstVisible(ctx, t.page, t.cfg.Locators.ViewListings)
	if idx < 0 {
		if err != nil {
			return fmt.Errorf("%w: %v", errNoViewLink, err)
		}
		return errNoViewLink
	}
	return t.page.Click(ctx, t.cfg.Locators.ViewListings[idx])
}

// nextControl returns the first next-page locator that is visible and links
// somewhere other than an in-page anchor.
func (t *Traverser) nextControl(ctx context.Context) (browser.Locator, bool) {
	for _, loc := range t.cfg.Locators.Next {
		visible, err := t.page.Visible(ctx, loc)
		if err != nil || !visible {
			continue
		}
		href, ok, err := t.page.Attr(ctx, loc, "href")
		if err != nil || !ok || !realHref(href) {
			logger.Debug("ignoring next control without a real href", "locator", loc, "href", href)
			continue
		}
		return loc, true
	}
	return browser.Locator{}, false
}

func realHref(href string) bool {
	href = strings.TrimSpace(href)
	return href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func (t *Traverser) advance(ctx context.Context, next browser.Locator) error {
	if err := t.page.Click(ctx, next); err != nil {
		return fmt.Errorf("click next: %w", err)
	}
	t.settle(ctx, "next page")
	return t.sleep(ctx, t.cfg.SettleDelay)
}

// settle waits for the network to go idle. A timeout is logged, not returned.
func (t *Traverser) settle(ctx context.Context, what string) {
	if err := t.page.WaitIdle(ctx, t.cfg.SettleTimeout); err != nil {
		logger.Debug("settle incomplete, continuing", "after", what, "error", err)
	}
}
