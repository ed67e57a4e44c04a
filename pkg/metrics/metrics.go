package metrics

import (
	"net/http"

	"github.com/itohio/gotmep/pkg/sample"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gotmep"

// Push outcomes.
const (
	PushOK       = "ok"
	PushConnect  = "connect_error"
	PushTimeout  = "response_timeout"
	PushDisabled = "disabled"
)

// Metrics holds the device collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	samples        prometheus.Counter
	sensorFailures prometheus.Counter
	pushes         *prometheus.CounterVec
	mirror         *prometheus.CounterVec
	resets         *prometheus.CounterVec
	average        *prometheus.GaugeVec
	windowCount    prometheus.Gauge
	uptime         prometheus.Gauge
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Accepted sensor samples.",
		}),
		sensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_failures_total",
			Help:      "Failed or invalid sensor reads.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_total",
			Help:      "Remote push attempts by outcome.",
		}, []string{"outcome"}),
		mirror: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_publish_total",
			Help:      "MQTT mirror publishes by outcome.",
		}, []string{"outcome"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reset_attempts_total",
			Help:      "Reset PIN attempts by result.",
		}, []string{"outcome"}),
		average: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average",
			Help:      "Rolling average per quantity.",
		}, []string{"quantity"}),
		windowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_count",
			Help:      "Samples currently in the rolling window.",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the control loop started.",
		}),
	}

	m.registry.MustRegister(
		m.samples,
		m.sensorFailures,
		m.pushes,
		m.mirror,
		m.resets,
		m.average,
		m.windowCount,
		m.uptime,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSample records an accepted sample and the resulting averages.
func (m *Metrics) ObserveSample(snap sample.Snapshot) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.windowCount.Set(float64(snap.Count))
	for _, q := range snap.Quantities() {
		v, _ := snap.Average(q)
		m.average.WithLabelValues(q.Key()).Set(float64(v))
	}
}

// SensorFailure records a failed read.
func (m *Metrics) SensorFailure() {
	if m == nil {
		return
	}
	m.sensorFailures.Inc()
}

// Push records one remote push outcome.
func (m *Metrics) Push(outcome string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
}

// Mirror records one MQTT publish outcome.
func (m *Metrics) Mirror(outcome string) {
	if m == nil {
		return
	}
	m.mirror.WithLabelValues(outcome).Inc()
}

// ResetAttempt records one PIN attempt result.
func (m *Metrics) ResetAttempt(outcome string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(outcome).Inc()
}

// Uptime records the loop uptime in seconds.
func (m *Metrics) Uptime(seconds float64) {
	if m == nil {
		return
	}
	m.uptime.Set(seconds)
}
