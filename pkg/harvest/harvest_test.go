package harvest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/bidharvest/internal/browser"
	"github.com/jmylchreest/bidharvest/internal/browser/browsertest"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

const (
	loginURL   = "https://portal.test/login"
	homeURL    = "https://portal.test/dashboard"
	listingURL = "https://portal.test/bids/search"
)

const loginPage = `<html><body><form action="/login">
<input type="text" name="username"><input type="password" name="password">
<button type="submit">Sign In</button></form></body></html>`

const homePage = `<html><body><h1>Dashboard</h1><a href="/logout">Log out</a>
<a href="/bids/search">View Open Bids</a></body></html>`

const listingPage = `<html><body><table class="bids"><tbody>
<tr><td><a href="/bids/detail/1">Janitorial Services Contract</a></td><td>01/02/2024</td><td>03/01/2024</td></tr>
<tr><td><a href="/bids/detail/2">Parking Lot Paving Bid</a></td><td>12/01/2023</td><td>01/05/2024</td></tr>
<tr><td><a href="/bids/detail/3">Staff Picnic Photos</a></td><td>01/02/2024</td><td>03/01/2024</td></tr>
</tbody></table></body></html>`

// fakeSession is a scripted page with lifecycle counters.
type fakeSession struct {
	*browsertest.Page
	startErr error
	starts   int
	stops    int
}

func (f *fakeSession) Start(context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeSession) Stop() { f.stops++ }

func newPortal() *fakeSession {
	p := browsertest.New(map[string]string{
		loginURL:   loginPage,
		homeURL:    homePage,
		listingURL: listingPage,
	})
	p.Submit = func(form url.Values) (string, error) {
		if form.Get("username") == "vendor" && form.Get("password") == "s3cret" {
			return homeURL, nil
		}
		return loginURL + "?error=1", nil
	}
	p.Routes[loginURL+"?error=1"] = `<html><body><div class="login-error">Bad credentials</div>` + loginPage + `</body></html>`
	return &fakeSession{Page: p}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LoginURL = loginURL
	cfg.ListingRootURL = homeURL
	cfg.Timezone = "UTC"
	cfg.ElementTimeout = 20 * time.Millisecond
	cfg.SettleDelay = 0
	return cfg
}

var fixedNow = func() time.Time { return time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC) }

func newHarvester(t *testing.T, s *fakeSession, cfg Config, opts ...Option) *Harvester {
	t.Helper()
	opts = append([]Option{
		WithSessionFactory(func(browser.Config) Session { return s }),
		WithClock(fixedNow),
	}, opts...)
	h, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func goodCreds() Options {
	return Options{Credentials: &Credentials{Username: "vendor", Password: "s3cret"}}
}

// --- Run ---

func TestRun_LoginAndExtract(t *testing.T) {
	s := newPortal()
	res, err := newHarvester(t, s, testConfig()).Run(context.Background(), goodCreds())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Bids) != 1 {
		t.Fatalf("expected 1 bid, got %d", len(res.Bids))
	}
	b := res.Bids[0]
	if b.Title != "Janitorial Services Contract" {
		t.Errorf("unexpected title %q", b.Title)
	}
	if b.Link != "https://portal.test/bids/detail/1" {
		t.Errorf("unexpected link %q", b.Link)
	}
	if res.Stats.Expired != 1 || res.Stats.Irrelevant != 1 || res.Stats.Pages != 1 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
	if res.RunID == "" || res.Portal != "vendorportal" {
		t.Errorf("expected run id and portal, got %q %q", res.RunID, res.Portal)
	}
	if s.starts != 1 || s.stops != 1 {
		t.Errorf("expected one start and one stop, got %d/%d", s.starts, s.stops)
	}
}

func TestRun_AnonymousWhenLoginOptional(t *testing.T) {
	s := newPortal()
	cfg := testConfig()
	cfg.RequireLogin = false
	res, err := newHarvester(t, s, cfg).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Bids) != 1 {
		t.Errorf("expected 1 bid, got %d", len(res.Bids))
	}
	for _, c := range s.Clicks() {
		if strings.Contains(strings.ToLower(c), "sign in") {
			t.Errorf("expected no login attempt, clicked %s", c)
		}
	}
}

// --- Failure classes ---

func TestRun_MissingCredentialsIsFatalBeforeLaunch(t *testing.T) {
	s := newPortal()
	_, err := newHarvester(t, s, testConfig()).Run(context.Background(), Options{})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if Classify(err) != ClassFatal {
		t.Errorf("expected fatal, got %s", Classify(err))
	}
	if s.starts != 0 {
		t.Errorf("expected no browser launch, got %d starts", s.starts)
	}
}

func TestRun_BrowserLaunchFailure(t *testing.T) {
	s := newPortal()
	s.startErr = errors.Join(browser.ErrBrowserLaunch, errors.New("no chrome"))
	_, err := newHarvester(t, s, testConfig()).Run(context.Background(), goodCreds())
	if !errors.Is(err, ErrBrowserLaunch) {
		t.Fatalf("expected ErrBrowserLaunch, got %v", err)
	}
	if Classify(err) != ClassFatal {
		t.Errorf("expected fatal, got %s", Classify(err))
	}
	if s.stops != 1 {
		t.Errorf("expected teardown after failed launch, got %d stops", s.stops)
	}
}

func TestRun_LoginFormWithoutPasswordField(t *testing.T) {
	s := newPortal()
	s.Routes[loginURL] = `<html><body><form><input type="text" name="username"><button type="submit">Next</button></form></body></html>`
	cfg := testConfig()
	cfg.DebugDir = t.TempDir()

	res, err := newHarvester(t, s, cfg).Run(context.Background(), Options{
		Credentials: &Credentials{Username: "vendor", Password: "s3cret"},
		Debug:       true,
	})
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if Classify(err) != ClassAuthentication {
		t.Fatalf("expected authentication failure, got %s (%v)", Classify(err), err)
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Snapshot == "" {
		t.Errorf("expected a rejection with a snapshot, got %v", err)
	}
	if s.stops != 1 {
		t.Errorf("expected teardown, got %d stops", s.stops)
	}
}

func TestRun_WrongPassword(t *testing.T) {
	s := newPortal()
	_, err := newHarvester(t, s, testConfig()).Run(context.Background(), Options{
		Credentials: &Credentials{Username: "vendor", Password: "nope"},
	})
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	if rejected.Reason != "Bad credentials" {
		t.Errorf("unexpected reason %q", rejected.Reason)
	}
	if s.Screenshots() != 0 {
		t.Errorf("expected no screenshots without debug, got %d", s.Screenshots())
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newPortal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newHarvester(t, s, testConfig()).Run(ctx, goodCreds())
	if !errors.Is(err, context.Canceled) || Classify(err) != ClassFatal {
		t.Fatalf("expected a fatal cancellation, got %s (%v)", Classify(err), err)
	}
	if s.stops != 1 {
		t.Errorf("expected teardown, got %d stops", s.stops)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{nil, ClassNone},
		{ErrMissingCredentials, ClassFatal},
		{ErrInvalidConfig, ClassFatal},
		{context.Canceled, ClassFatal},
		{&RejectedError{Reason: "x"}, ClassAuthentication},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

// --- Observer and enrichment ---

type recorder struct {
	results []*Result
	errs    []error
}

func (r *recorder) ObserveRun(res *Result, err error) {
	r.results = append(r.results, res)
	r.errs = append(r.errs, err)
}

type countingEnricher struct {
	cookies []*http.Cookie
}

func (c *countingEnricher) Enrich(_ context.Context, bids []bid.ExtractedBid, cookies []*http.Cookie) int {
	c.cookies = cookies
	for i := range bids {
		bids[i].Documents = append(bids[i].Documents, bid.Document{Name: "spec.pdf", URL: "https://portal.test/spec.pdf"})
	}
	return len(bids)
}

func TestRun_ObserverAndEnricher(t *testing.T) {
	s := newPortal()
	s.CookieJar = []*http.Cookie{{Name: "sid", Value: "abc"}}
	rec := &recorder{}
	enr := &countingEnricher{}
	cfg := testConfig()
	cfg.EnrichDetails = true

	h := newHarvester(t, s, cfg, WithObserver(rec), WithEnricher(enr))
	res, err := h.Run(context.Background(), goodCreds())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stats.Enriched != 1 || len(res.Bids[0].Documents) == 0 {
		t.Errorf("expected enrichment, got %+v", res.Stats)
	}
	if len(enr.cookies) != 1 || enr.cookies[0].Name != "sid" {
		t.Errorf("expected session cookies to be passed, got %v", enr.cookies)
	}

	_, _ = h.Run(context.Background(), Options{})
	if len(rec.results) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(rec.results))
	}
	if rec.results[0] != res || rec.errs[0] != nil {
		t.Error("expected first observation to be the successful run")
	}
	if rec.results[1] != nil || !errors.Is(rec.errs[1], ErrMissingCredentials) {
		t.Errorf("expected second observation to be the failure, got %v", rec.errs[1])
	}
}

// --- Config ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no listing url", func(c *Config) { c.ListingRootURL = "" }, false},
		{"list url only", func(c *Config) { c.ListingRootURL = ""; c.ListingListURL = "https://portal.test/bids" }, true},
		{"bad url", func(c *Config) { c.LoginURL = "not a url" }, false},
		{"no portal", func(c *Config) { c.Portal = "" }, false},
		{"bad pattern", func(c *Config) { c.AuthenticatedPattern = "(" }, false},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"zero timeout", func(c *Config) { c.NavigationTimeout = 0 }, false},
		{"tiny viewport", func(c *Config) { c.ViewportWidth = 10 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	if _, err := New(DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected default config without URLs to be rejected, got %v", err)
	}
}
