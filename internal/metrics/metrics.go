// Package metrics exposes heartbeat counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heartbeat-sim/internal/heartbeat"
)

const namespace = "heartbeat"

// Metrics holds every collector registered by the process.
type Metrics struct {
	Registry *prometheus.Registry

	ProbesTotal         *prometheus.CounterVec
	ProbeDuration       *prometheus.HistogramVec
	ConsecutiveFailures *prometheus.GaugeVec
	EscalationsTotal    *prometheus.CounterVec
	ConnectionsTotal    *prometheus.CounterVec
	FailureChance       prometheus.Gauge
	ChaosMode           prometheus.Gauge
	RequestsTotal       *prometheus.CounterVec

	buildInfo *prometheus.GaugeVec
	startTime time.Time
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry:  prometheus.NewRegistry(),
		startTime: time.Now(),

		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Completed probe cycles by outcome.",
			},
			[]string{"target", "outcome"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Wall time of a probe exchange, connect to close.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"target"},
		),
		ConsecutiveFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consecutive_failures",
				Help:      "Current run of failed probes.",
			},
			[]string{"target"},
		),
		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Critical failures raised by the monitor.",
			},
			[]string{"target"},
		),
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_connections_total",
				Help:      "Connections handled by the probe target by action.",
			},
			[]string{"action"},
		),
		FailureChance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_failure_chance",
			Help:      "Probability that the target stalls a connection.",
		}),
		ChaosMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_chaos_mode",
			Help:      "1 while chaos mode forces every connection to stall.",
		}),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_requests_total",
				Help:      "Admin API requests by route and status class.",
			},
			[]string{"op", "status"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version and role).",
			},
			[]string{"version", "role"},
		),
	}
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	m.Registry.MustRegister(
		m.ProbesTotal, m.ProbeDuration, m.ConsecutiveFailures, m.EscalationsTotal,
		m.ConnectionsTotal, m.FailureChance, m.ChaosMode, m.RequestsTotal,
		m.buildInfo, uptime,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version, role string) {
	m.buildInfo.WithLabelValues(version, role).Set(1)
}

// WriteProbe implements sink.ProbeWriter.
func (m *Metrics) WriteProbe(row heartbeat.ProbeRow) error {
	m.ProbesTotal.WithLabelValues(row.Target, row.Outcome).Inc()
	m.ProbeDuration.WithLabelValues(row.Target).Observe(row.LatencyMS / 1000)
	m.ConsecutiveFailures.WithLabelValues(row.Target).Set(float64(row.ConsecutiveFailures))
	return nil
}

// WriteEscalation implements sink.EscalationWriter.
func (m *Metrics) WriteEscalation(row heartbeat.EscalationRow) error {
	m.EscalationsTotal.WithLabelValues(row.Target).Inc()
	return nil
}

// WriteConnection implements sink.ConnectionWriter.
func (m *Metrics) WriteConnection(row heartbeat.ConnectionRow) error {
	m.ConnectionsTotal.WithLabelValues(row.Action).Inc()
	m.FailureChance.Set(row.FailureChance)
	if row.Chaos {
		m.ChaosMode.Set(1)
	} else {
		m.ChaosMode.Set(0)
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next to count requests under the op label.
func (m *Metrics) Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		class := strconv.Itoa(sw.status/100) + "xx"
		m.RequestsTotal.WithLabelValues(op, class).Inc()
	})
}
