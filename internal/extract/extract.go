// Package extract turns listing rows into bid records using ordered selector
// fallbacks and text patterns.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/bidharvest/internal/classify"
	"github.com/jmylchreest/bidharvest/internal/dates"
	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// Outcome says what happened to one row.
type Outcome int

const (
	Emitted Outcome = iota
	Blank
	Irrelevant
	Expired
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case Blank:
		return "blank"
	case Irrelevant:
		return "irrelevant"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// RowSelectors are tried in order; the first that yields any rows on a page
// defines the rows of that page.
var RowSelectors = []string{
	"table.bids tbody tr",
	"table tbody tr",
	"table tr",
	".bid-item",
	".listing-item",
	"li.result",
	"[role=row]",
}

// TitleHash is the hex SHA-256 of title.
func TitleHash(title string) string {
	sum := sha256.Sum256([]byte(title))
	return hex.EncodeToString(sum[:])
}

// Extractor reads rows for one portal.
type Extractor struct {
	portal     string
	classifier *classify.Classifier
	now        func() time.Time
	loc        *time.Location
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the clock used for the expiry filter.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLocation sets the zone dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) { e.loc = loc }
}

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Extractor) { e.classifier = c }
}

// New returns an Extractor stamping records with portal.
func New(portal string, opts ...Option) *Extractor {
	e := &Extractor{
		portal:     portal,
		classifier: classify.New(),
		now:        time.Now,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tally counts row outcomes for one page.
type Tally struct {
	Rows       int
	Blank      int
	Irrelevant int
	Expired    int
	Failed     int
}

// Add accumulates other into t.
func (t *Tally) Add(other Tally) {
	t.Rows += other.Rows
	t.Blank += other.Blank
	t.Irrelevant += other.Irrelevant
	t.Expired += other.Expired
	t.Failed += other.Failed
}

func (t *Tally) count(o Outcome) {
	t.Rows++
	switch o {
	case Blank:
		t.Blank++
	case Irrelevant:
		t.Irrelevant++
	case Expired:
		t.Expired++
	case Failed:
		t.Failed++
	}
}

// Page extracts every row of a rendered listing page, in document order.
// Row failures are counted, never returned.
func (e *Extractor) Page(html, pageURL string) ([]bid.ExtractedBid, Tally, error) {
	var tally Tally
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, tally, fmt.Errorf("parse listing page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, tally, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}

	rows := Rows(doc)
	var bids []bid.ExtractedBid
	rows.Each(func(i int, row *goquery.Selection) {
		b, outcome, err := e.Row(row, base)
		tally.count(outcome)
		switch outcome {
		case Emitted:
			bids = append(bids, *b)
		case Failed:
			logger.Warn("row extraction failed", "row", i, "error", err)
		}
	})
	logger.Debug("extracted listing page",
		"url", pageURL,
		"rows", tally.Rows,
		"bids", len(bids),
		"expired", tally.Expired,
		"irrelevant", tally.Irrelevant)
	return bids, tally, nil
}

// Rows returns the rows of doc according to RowSelectors.
func Rows(doc *goquery.Document) *goquery.Selection {
	for _, sel := range RowSelectors {
		rows := doc.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !isHeaderRow(s)
		})
		if rows.Length() > 0 {
			return rows
		}
	}
	return doc.FindNodes()
}

func isHeaderRow(s *goquery.Selection) bool {
	return goquery.NodeName(s) == "tr" && s.Find("th").Length() > 0 && s.Find("td").Length() == 0
}

// Row extracts one row. A panic while reading the row is recovered and
// reported as Failed.
func (e *Extractor) Row(row *goquery.Selection, base *url.URL) (out *bid.ExtractedBid, outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, outcome, err = nil, Failed, fmt.Errorf("panic extracting row: %v", r)
		}
	}()

	text := rowText(row)
	if text == "" {
		return nil, Blank, nil
	}

	title, ok := firstMatch(row, titleRules())
	if !ok {
		title = fallbackTitle(text)
	}
	if !e.classifier.IsBid(title) {
		return nil, Irrelevant, nil
	}

	b := &bid.ExtractedBid{
		Portal:      e.portal,
		Title:       title,
		Description: text,
		Status:      bid.StatusOpen,
	}
	b.Link, _ = firstMatch(row, linkRules(base))
	b.PostedDate, b.DueDate = dates.Bounds(dates.FindAll(text, e.loc))
	if amount, ok := firstMatch(row, textRules(amountPatterns, 0)); ok {
		b.Amount = normalizeAmount(amount)
	}
	b.Quantity, _ = firstMatch(row, textRules(quantityPatterns, 1))
	b.ExternalID, _ = firstMatch(row, textRules(externalIDPatterns, 1))
	b.Documents = Documents(row, base)

	if b.Expired(e.now()) {
		return nil, Expired, nil
	}

	b.TitleHash = TitleHash(b.Title)
	if err := b.Validate(); err != nil {
		return nil, Failed, err
	}
	return b, Emitted, nil
}

// Documents collects attachment links, one pass per pattern. A link matching
// several patterns is listed once per pattern.
func Documents(row *goquery.Selection, base *url.URL) []bid.Document {
	anchors := row.Find("a[href]")
	var docs []bid.Document
	for _, match := range documentPatterns {
		anchors.Each(func(_ int, a *goquery.Selection) {
			href := a.AttrOr("href", "")
			text := collapse(a.Text())
			if !match(strings.ToLower(href), strings.ToLower(text)) {
				return
			}
			resolved, ok := resolveHref(base, href)
			if !ok {
				return
			}
			name := text
			if name == "" {
				name = path.Base(stripQuery(resolved))
			}
			docs = append(docs, bid.Document{Name: name, URL: resolved})
		})
	}
	return docs
}
