// Package detail fetches bid detail pages over plain HTTP, reusing the
// browser's session cookies, and adds any attachments found there.
package detail

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/extract"
	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// Config holds configuration for the detail fetcher.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the pause between consecutive detail requests.
	Delay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent: browser.DefaultUserAgent,
		Timeout:   30 * time.Second,
		Delay:     500 * time.Millisecond,
	}
}

// Enricher visits detail pages one at a time.
type Enricher struct {
	config Config
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Enricher{config: cfg}
}

// Enrich visits the link of every bid and appends detail-page documents not
// already listed. It returns how many bids gained documents. Per-bid failures
// are logged and skipped.
func (e *Enricher) Enrich(ctx context.Context, bids []bid.ExtractedBid, cookies []*http.Cookie) int {
	enriched := 0
	for i := range bids {
		if ctx.Err() != nil {
			break
		}
		if bids[i].Link == "" {
			continue
		}
		if i > 0 && e.config.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.config.Delay):
			}
		}

		docs, err := e.fetch(ctx, bids[i].Link, cookies)
		if err != nil {
			logger.Warn("detail fetch failed", "url", bids[i].Link, "error", err)
			continue
		}
		if added := merge(&bids[i], docs); added > 0 {
			enriched++
			logger.Debug("detail documents added", "title", bids[i].Title, "added", added)
		}
	}
	return enriched
}

func (e *Enricher) fetch(ctx context.Context, link string, cookies []*http.Cookie) ([]bid.Document, error) {
	c := colly.NewCollector(
		colly.UserAgent(e.config.UserAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(e.config.Timeout)
	if len(cookies) > 0 {
		if err := c.SetCookies(link, cookies); err != nil {
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}

	var (
		docs     []bid.Document
		fetchErr error
	)
	c.OnHTML("body", func(el *colly.HTMLElement) {
		docs = extract.Documents(el.DOM, el.Request.URL)
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("status %d: %w", status, err)
	})

	if err := c.Visit(link); err != nil {
		return nil, fmt.Errorf("visit: %w", err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return docs, nil
}

// merge appends docs whose URL b does not already list.
func merge(b *bid.ExtractedBid, docs []bid.Document) int {
	seen := make(map[string]bool, len(b.Documents))
	for _, d := range b.Documents {
		seen[normalize(d.URL)] = true
	}
	added := 0
	for _, d := range docs {
		key := normalize(d.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		b.Documents = append(b.Documents, d)
		added++
	}
	return added
}

func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}
