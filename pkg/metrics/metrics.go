// Package metrics holds the Prometheus collectors shared by the directory and the transport.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request shapes, used as the "shape" label.
const (
	ShapeOneWay  = "one_way"
	ShapeReceive = "receive"
	ShapeCollect = "collect"
)

// Failure reasons, used as the "reason" label.
const (
	ReasonConnect = "connect"
	ReasonWrite   = "write"
	ReasonClosed  = "closed"
	ReasonTimeout = "timeout"
	ReasonDecode  = "decode"
)

type Metrics struct {
	requests        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	partialFanouts  prometheus.Counter
	registerRefresh prometheus.Histogram
}

// New builds the collectors and registers them on reg. A nil reg leaves them unregistered, which is
// what tests that read counters through testutil want.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatewayclient",
			Name:      "requests_total",
			Help:      "Frames sent to Gateways, by request shape.",
		}, []string{"shape"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatewayclient",
			Name:      "request_failures_total",
			Help:      "Gateway requests that failed, by request shape and reason.",
		}, []string{"shape", "reason"}),
		partialFanouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewayclient",
			Name:      "fanout_partial_total",
			Help:      "Fan-out queries that returned before every Gateway replied.",
		}),
		registerRefresh: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatewayclient",
			Name:      "register_refresh_seconds",
			Help:      "Latency of address list refreshes against the Register.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.failures, m.partialFanouts, m.registerRefresh} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) Request(shape string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(shape).Inc()
}

func (m *Metrics) Failure(shape, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(shape, reason).Inc()
}

func (m *Metrics) PartialFanout() {
	if m == nil {
		return
	}
	m.partialFanouts.Inc()
}

func (m *Metrics) RegisterRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.registerRefresh.Observe(d.Seconds())
}

func (m *Metrics) RequestCounter(shape string) prometheus.Counter {
	return m.requests.WithLabelValues(shape)
}

func (m *Metrics) FailureCounter(shape, reason string) prometheus.Counter {
	return m.failures.WithLabelValues(shape, reason)
}

func (m *Metrics) PartialFanoutCounter() prometheus.Counter {
	return m.partialFanouts
}
