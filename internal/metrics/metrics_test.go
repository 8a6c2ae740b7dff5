package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jmylchreest/bidharvest/internal/store"
	"github.com/jmylchreest/bidharvest/pkg/bid"
	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

func TestObserveRun_Success(t *testing.T) {
	m := New("vendorportal")
	res := &harvest.Result{
		Bids:      []bid.ExtractedBid{{Title: "a"}, {Title: "b"}},
		Stats:     harvest.Stats{Pages: 3, RowsSkipped: 1, Expired: 4, Irrelevant: 2, Truncated: true},
		StartedAt: time.Unix(1700000000, 0),
		Duration:  90 * time.Second,
	}
	m.ObserveRun(res, nil)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("vendorportal", "none")); got != 1 {
		t.Errorf("expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(m.BidsTotal.WithLabelValues("vendorportal")); got != 2 {
		t.Errorf("expected 2 bids, got %v", got)
	}
	if got := testutil.ToFloat64(m.RowsTotal.WithLabelValues("vendorportal", "expired")); got != 4 {
		t.Errorf("expected 4 expired rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.PagesTotal.WithLabelValues("vendorportal")); got != 3 {
		t.Errorf("expected 3 pages, got %v", got)
	}
	if got := testutil.ToFloat64(m.TruncatedTotal.WithLabelValues("vendorportal")); got != 1 {
		t.Errorf("expected truncated run, got %v", got)
	}
	if got := testutil.ToFloat64(m.LastSuccess.WithLabelValues("vendorportal")); got != 1700000090 {
		t.Errorf("unexpected last success %v", got)
	}
}

func TestObserveRun_Failures(t *testing.T) {
	m := New("vendorportal")
	m.ObserveRun(nil, &harvest.RejectedError{Reason: "bad password"})
	m.ObserveRun(nil, harvest.ErrMissingCredentials)
	m.ObserveRun(nil, errors.Join(harvest.ErrBrowserLaunch, errors.New("no chrome")))

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("vendorportal", "authentication")); got != 1 {
		t.Errorf("expected 1 auth failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("vendorportal", "fatal")); got != 2 {
		t.Errorf("expected 2 fatal runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.BidsTotal.WithLabelValues("vendorportal")); got != 0 {
		t.Errorf("expected no bids counted for failed runs, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("vendorportal")
	m.ObserveStore(store.Result{Inserted: 3, Updated: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`bidharvest_stored_total{op="insert",portal="vendorportal"} 3`,
		`bidharvest_stored_total{op="update",portal="vendorportal"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}
