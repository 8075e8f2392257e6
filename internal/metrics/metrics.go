// Package metrics defines the Prometheus collectors recorded during a search
// run. A run is short-lived, so the registry is written to a file in the
// node_exporter textfile format instead of being scraped.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of a single run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	ResultsTotal    *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlab_search_requests_total",
				Help: "GitLab API requests by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitlab_search_request_duration_seconds",
				Help:    "GitLab API request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlab_search_cache_lookups_total",
				Help: "Response cache lookups by result.",
			},
			[]string{"result"},
		),
		ResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlab_search_results_total",
				Help: "Results printed by scope.",
			},
			[]string{"scope"},
		),
	}
	m.registry.MustRegister(m.RequestsTotal, m.RequestDuration, m.CacheLookups, m.ResultsTotal)
	return m
}

// ObserveRequest records one HTTP round-trip. code 0 means a transport error.
func (m *Metrics) ObserveRequest(endpoint string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, label).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) Results(scope string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ResultsTotal.WithLabelValues(scope).Add(float64(n))
}

// WriteFile writes all collectors to path in the textfile collector format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
