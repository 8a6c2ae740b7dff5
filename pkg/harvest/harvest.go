// Package harvest is the public entry point: one Run logs into the portal,
// walks its listing and returns every current bid found.
package harvest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/bidharvest/internal/auth"
	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/classify"
	"github.com/jmylchreest/bidharvest/internal/debugsink"
	"github.com/jmylchreest/bidharvest/internal/detail"
	"github.com/jmylchreest/bidharvest/internal/extract"
	"github.com/jmylchreest/bidharvest/internal/listing"
	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// Credentials is a username/password pair. It never renders its password.
type Credentials = auth.Credentials

// Session is a browser page with an explicit lifecycle.
type Session interface {
	browser.Page
	Start(ctx context.Context) error
	Stop()
}

// SessionFactory builds an unstarted Session.
type SessionFactory func(browser.Config) Session

// Enricher adds detail-page information to extracted bids.
type Enricher interface {
	Enrich(ctx context.Context, bids []bid.ExtractedBid, cookies []*http.Cookie) int
}

// Observer is told about every finished run. res is nil when the run failed
// before producing one.
type Observer interface {
	ObserveRun(res *Result, err error)
}

// Options controls a single run.
type Options struct {
	// Credentials may be nil when the portal allows anonymous browsing and
	// Config.RequireLogin is false.
	Credentials *Credentials
	// Debug enables screenshots at failure points and run checkpoints.
	Debug bool
}

// Stats summarises what a run saw.
type Stats struct {
	Pages       int    `json:"pages" yaml:"pages"`
	RowsSeen    int    `json:"rows_seen" yaml:"rows_seen"`
	RowsSkipped int    `json:"rows_skipped" yaml:"rows_skipped"`
	Irrelevant  int    `json:"irrelevant" yaml:"irrelevant"`
	Expired     int    `json:"expired" yaml:"expired"`
	RowErrors   int    `json:"row_errors" yaml:"row_errors"`
	PageErrors  int    `json:"page_errors" yaml:"page_errors"`
	Truncated   bool   `json:"truncated" yaml:"truncated"`
	StopReason  string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Enriched    int    `json:"enriched" yaml:"enriched"`
}

// Result is the outcome of a successful run.
type Result struct {
	RunID     string             `json:"run_id" yaml:"run_id"`
	Portal    string             `json:"portal" yaml:"portal"`
	Bids      []bid.ExtractedBid `json:"bids" yaml:"bids"`
	Stats     Stats              `json:"stats" yaml:"stats"`
	StartedAt time.Time          `json:"started_at" yaml:"started_at"`
	Duration  time.Duration      `json:"duration" yaml:"duration"`
}

// Harvester runs extractions against one configured portal.
type Harvester struct {
	cfg        Config
	compiled   compiled
	newSession SessionFactory
	now        func() time.Time
	enricher   Enricher
	observer   Observer
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithSessionFactory replaces the Chrome-backed session.
func WithSessionFactory(f SessionFactory) Option {
	return func(h *Harvester) {
		h.newSession = f
	}
}

// WithClock sets the time source used for expiry checks and timings.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		h.now = now
	}
}

// WithEnricher sets the detail enricher. It is only used when
// Config.EnrichDetails is true.
func WithEnricher(e Enricher) Option {
	return func(h *Harvester) {
		h.enricher = e
	}
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(h *Harvester) {
		h.observer = o
	}
}

func chromeSession(cfg browser.Config) Session {
	return browser.NewSession(cfg)
}

// New validates cfg and returns a Harvester.
func New(cfg Config, opts ...Option) (*Harvester, error) {
	c, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	h := &Harvester{
		cfg:        cfg,
		compiled:   c,
		newSession: chromeSession,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.enricher == nil && cfg.EnrichDetails {
		h.enricher = detail.New(detail.Config{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
			Delay:     cfg.SettleDelay,
		})
	}
	return h, nil
}

// Config returns the harvester's configuration.
func (h *Harvester) Config() Config { return h.cfg }

// Run performs one complete extraction. The browser is always torn down
// before Run returns. The returned error is nil, or one that Classify maps to
// ClassFatal or ClassAuthentication; partial listing failures are reported
// through Result.Stats instead.
func (h *Harvester) Run(ctx context.Context, opts Options) (*Result, error) {
	res, err := h.run(ctx, opts)
	if err != nil {
		res = nil
	}
	if h.observer != nil {
		h.observer.ObserveRun(res, err)
	}
	return res, err
}

func (h *Harvester) run(ctx context.Context, opts Options) (*Result, error) {
	start := h.now()
	res := &Result{RunID: uuid.NewString(), Portal: h.cfg.Portal, StartedAt: start}
	log := logger.With("run_id", res.RunID, "portal", h.cfg.Portal)

	if opts.Credentials != nil && !opts.Credentials.Valid() {
		return nil, ErrMissingCredentials
	}
	if opts.Credentials == nil && h.cfg.RequireLogin {
		return nil, ErrMissingCredentials
	}

	var sink *debugsink.Sink
	if opts.Debug {
		sink = debugsink.New(h.cfg.DebugDir)
	}

	session := h.newSession(h.cfg.browserConfig())
	defer func() {
		session.Stop()
		log.Debug("browser stopped")
	}()

	log.Info("starting run", "headless", h.cfg.Headless, "debug", opts.Debug)
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if opts.Credentials != nil {
		m := auth.New(session, auth.Config{
			LoginURL:         h.cfg.LoginURL,
			AuthenticatedURL: h.compiled.authenticated,
			LoginURLPattern:  h.compiled.login,
			FormTimeout:      h.cfg.ElementTimeout,
			SubmitSettle:     h.cfg.SubmitSettleTimeout,
		}, sink)
		if err := m.Login(ctx, opts.Credentials); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			return nil, err
		}
		sink.Snapshot(ctx, session, "logged-in")
	} else {
		log.Info("no credentials, browsing anonymously")
	}

	extractor := extract.New(h.cfg.Portal,
		extract.WithClock(h.now),
		extract.WithLocation(h.compiled.loc),
		extract.WithClassifier(classify.New(h.cfg.Keywords...)),
	)
	tr := listing.New(session, extractor, listing.Config{
		RootURL:       h.cfg.ListingRootURL,
		SearchURL:     h.cfg.ListingSearchURL,
		ListURL:       h.cfg.ListingListURL,
		SettleTimeout: h.cfg.SettleTimeout,
		SettleDelay:   h.cfg.SettleDelay,
	}, sink)
	bids, ls := tr.Run(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	sink.Snapshot(ctx, session, "listing-done")

	res.Bids = bids
	res.Stats = Stats{
		Pages:       ls.Pages,
		RowsSeen:    ls.Rows,
		RowsSkipped: ls.Blank,
		Irrelevant:  ls.Irrelevant,
		Expired:     ls.Expired,
		RowErrors:   ls.Failed,
		PageErrors:  ls.PageErrors,
		Truncated:   ls.Truncated,
		StopReason:  ls.StopReason,
	}

	if h.cfg.EnrichDetails && h.enricher != nil && len(bids) > 0 {
		cookies, err := session.Cookies(ctx)
		if err != nil {
			log.Warn("could not read session cookies, enriching without them", "error", err)
		}
		res.Stats.Enriched = h.enricher.Enrich(ctx, res.Bids, cookies)
	}

	res.Duration = h.now().Sub(start)
	log.Info("run complete",
		"bids", len(res.Bids),
		"pages", res.Stats.Pages,
		"expired", res.Stats.Expired,
		"page_errors", res.Stats.PageErrors,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}
