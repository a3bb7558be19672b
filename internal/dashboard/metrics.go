package dashboard

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ohmyremote/internal/store"
)

// Metrics is a thin Prometheus read-view over the store: every gauge is
// refreshed from a fresh query immediately before each scrape, so the
// exposition never drifts from the store's own bookkeeping. Grounded on
// internal/metrics/metrics.go's registry-owning Metrics struct.
type Metrics struct {
	store *store.Store

	registry  *prometheus.Registry
	runStatus *prometheus.GaugeVec
	jobStatus *prometheus.GaugeVec
}

// NewMetrics builds and registers the gauges, backed by s for refresh.
func NewMetrics(s *store.Store) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		store:    s,
		registry: reg,
		runStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ohmyremote_runs",
				Help: "Number of runs currently in each status.",
			},
			[]string{"status"},
		),
		jobStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ohmyremote_jobs",
				Help: "Number of jobs currently in each status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(m.runStatus)
	reg.MustRegister(m.jobStatus)
	return m
}

// Handler serves the gauges in the Prometheus text exposition format with
// the values set by the last refresh; it does not query the store itself.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) refresh() {
	if runs, err := m.store.CountRunsByStatus(); err == nil {
		m.runStatus.Reset()
		for status, n := range runs {
			m.runStatus.WithLabelValues(status).Set(float64(n))
		}
	}
	if jobs, err := m.store.CountJobsByStatus(); err == nil {
		m.jobStatus.Reset()
		for status, n := range jobs {
			m.jobStatus.WithLabelValues(status).Set(float64(n))
		}
	}
}
