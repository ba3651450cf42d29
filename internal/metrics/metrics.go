// Package metrics holds the Prometheus collectors for the import pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	pagesRasterized   prometheus.Counter
	extractDuration   *prometheus.HistogramVec
	extractedItems    prometheus.Histogram
	committedItems    *prometheus.CounterVec
	commitOutcomes    *prometheus.CounterVec
	specialsRefreshed *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pagesRasterized: f.NewCounter(prometheus.CounterOpts{
			Namespace: "menuimport",
			Name:      "pages_rasterized_total",
			Help:      "Page images produced from uploaded files.",
		}),
		extractDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "menuimport",
			Name:      "extraction_duration_seconds",
			Help:      "Latency of extraction service calls.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"provider", "outcome"}),
		extractedItems: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "menuimport",
			Name:      "extracted_items",
			Help:      "Candidate items returned per extraction.",
			Buckets:   prometheus.LinearBuckets(0, 10, 10),
		}),
		committedItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menuimport",
			Name:      "committed_items_total",
			Help:      "Items written or skipped by committed imports.",
		}, []string{"policy", "result"}),
		commitOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menuimport",
			Name:      "commits_total",
			Help:      "Commit attempts by outcome.",
		}, []string{"outcome"}),
		specialsRefreshed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menuimport",
			Name:      "specials_refreshed_total",
			Help:      "Special items whose availability changed on schedule.",
		}, []string{"change"}),
	}
}

func (m *Metrics) PagesRasterized(n int) {
	if m == nil {
		return
	}
	m.pagesRasterized.Add(float64(n))
}

func (m *Metrics) Extraction(provider, outcome string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.extractDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
	if outcome == "ok" {
		m.extractedItems.Observe(float64(items))
	}
}

func (m *Metrics) Commit(policy, outcome string, imported, skipped int) {
	if m == nil {
		return
	}
	m.commitOutcomes.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		return
	}
	m.committedItems.WithLabelValues(policy, "imported").Add(float64(imported))
	m.committedItems.WithLabelValues(policy, "skipped").Add(float64(skipped))
}

func (m *Metrics) SpecialsRefreshed(activated, expired int64) {
	if m == nil {
		return
	}
	m.specialsRefreshed.WithLabelValues("activated").Add(float64(activated))
	m.specialsRefreshed.WithLabelValues("expired").Add(float64(expired))
}
