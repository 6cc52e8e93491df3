package page

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	pages    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg. A nil reg leaves the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailpage_pages_total",
			Help: "Pages returned, by outcome (complete or partial).",
		}, []string{"outcome"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailpage_page_errors_total",
			Help: "Page requests that failed, by error kind.",
		}, []string{"kind"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailpage_messages_skipped_total",
			Help: "Messages or events left out of a page, by reason.",
		}, []string{"reason"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailpage_fetch_duration_seconds",
			Help:    "Time spent assembling the fetch stream of a page.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) page(partial bool) {
	if m == nil {
		return
	}
	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	m.pages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) failure(kind Kind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) skip(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observe(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
