// Package metrics exposes the notifier's prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace    = "nekoq_peernotify"
	requestLabel = "request"
	resultLabel  = "result"
)

// Metrics is safe to use as a nil pointer, every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal         *prometheus.CounterVec
	serverCallsTotal      *prometheus.CounterVec
	recomputeFailureTotal prometheus.Counter
	advertisedPeers       prometheus.Gauge
	running               prometheus.Gauge
}

func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "requests_total",
			Help:      "The total count of requests processed by the notifier queue.",
		}, []string{requestLabel}),
		serverCallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "server_calls_total",
			Help:      "The total count of notification server calls.",
		}, []string{requestLabel, resultLabel}),
		recomputeFailureTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "recompute_failures_total",
			Help:      "The total count of failed debounce or refresh recomputes.",
		}),
		advertisedPeers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "advertised_peers",
			Help:      "The number of peers currently advertised.",
		}),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "running",
			Help:      "1 while a notifier session is active.",
		}),
	}, nil
}

func (m *Metrics) AddRequest(request string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(request).Inc()
}

func (m *Metrics) AddServerCall(call string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.serverCallsTotal.WithLabelValues(call, result).Inc()
}

func (m *Metrics) AddRecomputeFailure() {
	if m == nil {
		return
	}
	m.recomputeFailureTotal.Inc()
}

func (m *Metrics) SetAdvertisedPeers(n int) {
	if m == nil {
		return
	}
	m.advertisedPeers.Set(float64(n))
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
