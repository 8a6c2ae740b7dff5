package listing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/bidharvest/internal/browser/browsertest"
	"github.com/jmylchreest/bidharvest/internal/extract"
)

const (
	rootURL   = "https://portal.test/home"
	searchURL = "https://portal.test/bids/search"
)

// readTestdata reads a file from the testdata directory
func readTestdata(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("failed to read testdata %s: %v", filename, err)
	}
	return string(data)
}

func newExtractor() *extract.Extractor {
	now := func() time.Time { return time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC) }
	return extract.New("vendorportal", extract.WithClock(now), extract.WithLocation(time.UTC))
}

func newTraverser(p *browsertest.Page, cfg Config) *Traverser {
	tr := New(p, newExtractor(), cfg, nil)
	tr.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return tr
}

func twoPagePortal(t *testing.T) *browsertest.Page {
	return browsertest.New(map[string]string{
		rootURL:               readTestdata(t, "root.html"),
		searchURL:             readTestdata(t, "search.html"),
		searchURL + "?page=1": readTestdata(t, "page1.html"),
		searchURL + "?page=2": readTestdata(t, "page2.html"),
	})
}

// --- End to end ---

func TestRun_TwoPagesWithExpiredRows(t *testing.T) {
	p := twoPagePortal(t)
	bids, stats := newTraverser(p, Config{RootURL: rootURL}).Run(context.Background())

	if len(bids) != 4 {
		t.Fatalf("expected 4 bids, got %d", len(bids))
	}
	for _, b := range bids {
		if b.TitleHash == "" {
			t.Errorf("bid %q has no title hash", b.Title)
		}
		if strings.Contains(b.Title, "Paving") || strings.Contains(b.Title, "Roofing") {
			t.Errorf("expired bid %q was emitted", b.Title)
		}
	}
	if stats.Pages != 2 {
		t.Errorf("expected 2 pages, got %d", stats.Pages)
	}
	if stats.Expired != 2 || stats.Rows != 6 {
		t.Errorf("expected 6 rows with 2 expired, got %+v", stats.Tally)
	}
	if stats.StopReason != "no next page" || stats.Truncated || stats.PageErrors != 0 {
		t.Errorf("unexpected stop: %+v", stats)
	}

	// root, view link, search, one next click
	if p.Navigations() != 4 {
		t.Errorf("expected 4 navigations, got %d", p.Navigations())
	}
}

func TestRun_PreservesServedOrder(t *testing.T) {
	bids, _ := newTraverser(twoPagePortal(t), Config{RootURL: rootURL}).Run(context.Background())
	var titles []string
	for _, b := range bids {
		titles = append(titles, b.Title)
	}
	want := "Janitorial Services Contract|Snow Removal Bid|HVAC Maintenance RFQ-2024-09|Office Supplies Requisition"
	if got := strings.Join(titles, "|"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// --- Page cap ---

func endlessPortal() *browsertest.Page {
	p := browsertest.New(nil)
	p.Fallback = func(rawURL string) (string, bool) {
		var n int
		if _, err := fmt.Sscanf(rawURL, "https://portal.test/p/%d", &n); err != nil {
			return "", false
		}
		return fmt.Sprintf(`<html><body><table><tr><td>Paving Services Bid %d</td></tr></table>
			<a href="/p/%d">Next</a></body></html>`, n, n+1), true
	}
	return p
}

func TestRun_StopsAtPageCap(t *testing.T) {
	p := endlessPortal()
	bids, stats := newTraverser(p, Config{SearchURL: "https://portal.test/p/1"}).Run(context.Background())

	if p.Navigations() > MaxPageIterations {
		t.Errorf("expected at most %d navigations, got %d", MaxPageIterations, p.Navigations())
	}
	if stats.Pages != MaxPageIterations || len(bids) != MaxPageIterations {
		t.Errorf("expected %d pages and bids, got %d pages, %d bids", MaxPageIterations, stats.Pages, len(bids))
	}
	if !stats.Truncated {
		t.Error("expected the walk to be marked truncated")
	}
}

func TestRun_CyclicPaginationIsBounded(t *testing.T) {
	page := `<html><body><table><tr><td>Loop Services Bid</td></tr></table><a href="/loop">Next</a></body></html>`
	p := browsertest.New(map[string]string{"https://portal.test/loop": page})

	bids, stats := newTraverser(p, Config{ListURL: "https://portal.test/loop"}).Run(context.Background())
	if p.Navigations() > MaxPageIterations {
		t.Errorf("expected at most %d navigations, got %d", MaxPageIterations, p.Navigations())
	}
	if len(bids) != MaxPageIterations || !stats.Truncated {
		t.Errorf("expected %d repeated bids and truncation, got %d, %+v", MaxPageIterations, len(bids), stats)
	}
}

// --- Degradation ---

func TestRun_FallsBackToListURL(t *testing.T) {
	p := browsertest.New(map[string]string{
		"https://portal.test/bids/list": readTestdata(t, "page2.html"),
	})
	cfg := Config{
		RootURL:   rootURL,
		SearchURL: "https://portal.test/bids/missing",
		ListURL:   "https://portal.test/bids/list",
	}
	bids, stats := newTraverser(p, cfg).Run(context.Background())
	if len(bids) != 2 || stats.PageErrors != 0 {
		t.Errorf("expected 2 bids from the list URL, got %d (%+v)", len(bids), stats)
	}
}

func TestRun_BrokenNextPageKeepsEarlierPages(t *testing.T) {
	p := twoPagePortal(t)
	delete(p.Routes, searchURL+"?page=2")

	bids, stats := newTraverser(p, Config{RootURL: rootURL}).Run(context.Background())
	if len(bids) != 2 {
		t.Errorf("expected page 1 bids to survive, got %d", len(bids))
	}
	if stats.PageErrors != 1 || stats.Pages != 1 {
		t.Errorf("expected one page and one page error, got %+v", stats)
	}
}

func TestRun_ListingUnreachable(t *testing.T) {
	p := browsertest.New(nil)
	bids, stats := newTraverser(p, Config{RootURL: rootURL, SearchURL: searchURL}).Run(context.Background())
	if bids != nil {
		t.Errorf("expected no bids, got %d", len(bids))
	}
	if stats.PageErrors != 1 || !strings.Contains(stats.StopReason, "listing unreachable") {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// --- Next control ---

func TestNextControl_RequiresRealHref(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"real link", `<a href="/p/2">Next</a>`, true},
		{"anchor only", `<a href="#">Next</a>`, false},
		{"anchor fragment", `<a href="#results">Next</a>`, false},
		{"script link", `<a href="javascript:next()">Next</a>`, false},
		{"no href", `<a>Next</a>`, false},
		{"hidden", `<a href="/p/2" style="display:none">Next</a>`, false},
		{"later locator", `<a href="#">Next</a><ul><li class="next"><a href="/p/2">2</a></li></ul>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := browsertest.New(map[string]string{"https://portal.test/p/1": "<html><body>" + tt.html + "</body></html>"})
			_ = p.Navigate(context.Background(), "https://portal.test/p/1")
			_, got := newTraverser(p, Config{}).nextControl(context.Background())
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
