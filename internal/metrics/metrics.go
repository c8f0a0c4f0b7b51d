// Package metrics holds the coordinator's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "securesend"
	subsystem = "coord"
)

// Store operation and delivery results.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultGone     = "gone"
	ResultError    = "error"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestSeconds    *prometheus.HistogramVec
	storeOpsTotal     *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	websocketConns    prometheus.Gauge
	offersPurgedTotal prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Number of coordinator requests by route and outcome.",
			}, []string{"route", "outcome"}),
		requestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_seconds",
				Help:      "Latency of coordinator requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			}, []string{"route"}),
		storeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "store_operations_total",
				Help:      "Number of offer directory operations.",
			}, []string{"operation", "result"}),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "deliveries_total",
				Help:      "Number of push deliveries by result.",
			}, []string{"result"}),
		websocketConns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "websocket_connections",
				Help:      "Number of open gateway WebSocket connections.",
			}),
		offersPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "offers_purged_total",
				Help:      "Number of expired offers removed by the purge loop.",
			}),
	}
	if reg != nil {
		reg.MustRegister(
			m.requestsTotal,
			m.requestSeconds,
			m.storeOpsTotal,
			m.deliveriesTotal,
			m.websocketConns,
			m.offersPurgedTotal,
		)
	}
	return m
}

func (m *Metrics) ObserveRequest(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, outcome).Inc()
	m.requestSeconds.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) StoreOperation(operation, result string) {
	if m == nil {
		return
	}
	m.storeOpsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.websocketConns.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.websocketConns.Dec()
}

func (m *Metrics) OffersPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.offersPurgedTotal.Add(float64(n))
}
