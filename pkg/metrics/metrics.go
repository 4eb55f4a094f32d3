package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ProbesTotal     *prometheus.CounterVec
	ProbeDuration   prometheus.Histogram
	RecordsUpserted *prometheus.CounterVec
	StoreErrors     prometheus.Counter
	Proxies         *prometheus.GaugeVec
	EnginePhase     prometheus.Gauge
}

// New registers the collectors against reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ProbesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prober_probes_total",
				Help: "Total number of probe attempts by outcome.",
			},
			[]string{"outcome"}, // found, absent, timeout, transport, proxy, status
		),
		ProbeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prober_probe_duration_seconds",
				Help:    "Duration of probe calls.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
		),
		RecordsUpserted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prober_records_upserted_total",
				Help: "Total number of records written to the result store.",
			},
			[]string{"classification"},
		),
		StoreErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "prober_store_errors_total",
				Help: "Total number of failed result store writes.",
			},
		),
		Proxies: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prober_proxies",
				Help: "Number of egress paths by health.",
			},
			[]string{"health"},
		),
		EnginePhase: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "prober_engine_phase",
				Help: "Current engine phase (0 idle, 1 running, 2 paused, 3 stopping).",
			},
		),
	}
}
