// Package metrics exposes Prometheus counters for metadata lookups and
// produced diagnostics.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements metadata.Recorder and tooling.Recorder.
type Collector struct {
	registry *prometheus.Registry

	// Lookups counts metadata lookups by the tier that answered them
	Lookups *prometheus.CounterVec

	// Diagnostics counts produced diagnostics by code
	Diagnostics *prometheus.CounterVec

	// AnalysisDuration measures one full diagnostics pass over a document
	AnalysisDuration prometheus.Histogram
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		Lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querylint_metadata_lookups_total",
				Help: "Metadata lookups by outcome",
			},
			[]string{"outcome"},
		),
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querylint_diagnostics_total",
				Help: "Diagnostics produced by code",
			},
			[]string{"code"},
		),
		AnalysisDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "querylint_analysis_duration_seconds",
				Help: "Duration of a diagnostics pass over one document",
				// From an all-cached pass to several schema round trips
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordLookup(outcome string) {
	c.Lookups.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDiagnostic(code string) {
	c.Diagnostics.WithLabelValues(code).Inc()
}

func (c *Collector) ObserveAnalysis(d time.Duration) {
	c.AnalysisDuration.Observe(d.Seconds())
}

// Handler serves /metrics and /healthz.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return r
}
