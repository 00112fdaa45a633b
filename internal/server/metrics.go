package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaramelBytes/phenodash/internal/pipeline"
)

type metrics struct {
	reg         *prometheus.Registry
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	rows        prometheus.Gauge
	removed     *prometheus.GaugeVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// newMetrics registers collectors on a registry private to one Server.
func newMetrics() *metrics {
	m := &metrics{reg: prometheus.NewRegistry()}
	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phenodash",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by result.",
	}, []string{"result"})
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "phenodash",
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "Wall time of successful pipeline runs, load included.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.rows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "phenodash",
		Subsystem: "pipeline",
		Name:      "rows",
		Help:      "Rows in the current cleaned snapshot.",
	})
	m.removed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "phenodash",
		Subsystem: "pipeline",
		Name:      "rows_removed",
		Help:      "Rows each stage removed in the current snapshot.",
	}, []string{"stage"})
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phenodash",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "phenodash",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.rows, m.removed, m.requests, m.latency,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *metrics) observeRun(res *pipeline.Result, err error) {
	if err != nil {
		m.runs.WithLabelValues("failure").Inc()
		return
	}
	m.runs.WithLabelValues("success").Inc()
	m.runDuration.Observe(res.Duration.Seconds())
	m.rows.Set(float64(res.Table.Len()))
	m.removed.Reset()
	for _, st := range res.Trace {
		m.removed.WithLabelValues(st.Name()).Set(float64(st.Removed()))
	}
}
