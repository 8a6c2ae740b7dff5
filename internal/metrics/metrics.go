// Package metrics exposes Prometheus metrics for harvest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/bidharvest/internal/store"
	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

const namespace = "bidharvest"

// Metrics holds the run metrics for one portal.
type Metrics struct {
	portal string
	reg    *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	BidsTotal       *prometheus.CounterVec
	RowsTotal       *prometheus.CounterVec
	PagesTotal      *prometheus.CounterVec
	PageErrorsTotal *prometheus.CounterVec
	TruncatedTotal  *prometheus.CounterVec
	LastSuccess     *prometheus.GaugeVec
	StoredTotal     *prometheus.CounterVec
}

// New registers all metrics on a fresh registry, along with the Go and
// process collectors.
func New(portal string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	m := &Metrics{portal: portal, reg: reg}

	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Harvest runs by outcome class",
	}, []string{"portal", "class"})

	m.RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of successful harvest runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"portal"})

	m.BidsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bids_total",
		Help:      "Bids emitted",
	}, []string{"portal"})

	m.RowsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_total",
		Help:      "Listing rows seen, by outcome",
	}, []string{"portal", "outcome"})

	m.PagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_total",
		Help:      "Listing pages extracted",
	}, []string{"portal"})

	m.PageErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_errors_total",
		Help:      "Listing pages that ended a traversal early",
	}, []string{"portal"})

	m.TruncatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "truncated_runs_total",
		Help:      "Runs stopped by the page limit",
	}, []string{"portal"})

	m.LastSuccess = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	}, []string{"portal"})

	m.StoredTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stored_total",
		Help:      "Bids written to the store, by operation",
	}, []string{"portal", "op"})

	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(res *harvest.Result, err error) {
	m.RunsTotal.WithLabelValues(m.portal, harvest.Classify(err).String()).Inc()
	if res == nil {
		return
	}
	s := res.Stats
	m.RunDuration.WithLabelValues(m.portal).Observe(res.Duration.Seconds())
	m.BidsTotal.WithLabelValues(m.portal).Add(float64(len(res.Bids)))
	m.RowsTotal.WithLabelValues(m.portal, "emitted").Add(float64(len(res.Bids)))
	m.RowsTotal.WithLabelValues(m.portal, "blank").Add(float64(s.RowsSkipped))
	m.RowsTotal.WithLabelValues(m.portal, "irrelevant").Add(float64(s.Irrelevant))
	m.RowsTotal.WithLabelValues(m.portal, "expired").Add(float64(s.Expired))
	m.RowsTotal.WithLabelValues(m.portal, "failed").Add(float64(s.RowErrors))
	m.PagesTotal.WithLabelValues(m.portal).Add(float64(s.Pages))
	m.PageErrorsTotal.WithLabelValues(m.portal).Add(float64(s.PageErrors))
	if s.Truncated {
		m.TruncatedTotal.WithLabelValues(m.portal).Inc()
	}
	m.LastSuccess.WithLabelValues(m.portal).Set(float64(res.StartedAt.Add(res.Duration).Unix()))
}

// ObserveStore records an upsert result.
func (m *Metrics) ObserveStore(r store.Result) {
	m.StoredTotal.WithLabelValues(m.portal, "insert").Add(float64(r.Inserted))
	m.StoredTotal.WithLabelValues(m.portal, "update").Add(float64(r.Updated))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var _ harvest.Observer = (*Metrics)(nil)
