// Package metrics holds the Prometheus collectors exported by journalfwd.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "journalfwd"

// Stream results.
const (
	StreamCompleted = "completed"
	StreamAborted   = "aborted"
	StreamRejected  = "rejected"
	StreamFailed    = "failed"
)

// Forward results.
const (
	ForwardOK       = "ok"
	ForwardError    = "error"
	ForwardDropped  = "dropped"
	ForwardRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	streams        *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	entries        prometheus.Counter
	framingErrors  *prometheus.CounterVec
	forwarded      *prometheus.CounterVec
	forwardLatency prometheus.Histogram
	queueDepth     prometheus.Gauge
}

// New registers all collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		streams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "The total number of upload streams by result.",
		}, []string{"result"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "The total number of decoded stream bytes consumed by the parser.",
		}),
		entries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "The total number of journal entries completed by the parser.",
		}),
		framingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "The total number of streams aborted by a framing error, by reason.",
		}, []string{"reason"}),
		forwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_total",
			Help:      "The total number of entries handed to the collector, by result.",
		}, []string{"result"}),
		forwardLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Time spent posting one entry to the collector.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Entries waiting for a dispatch worker.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Stream(result string, bytes int64, entries int) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(result).Inc()
	m.bytesReceived.Add(float64(bytes))
	m.entries.Add(float64(entries))
}

func (m *Metrics) FramingError(reason string) {
	if m == nil {
		return
	}
	m.framingErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) Forward(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(result).Inc()
	if took > 0 {
		m.forwardLatency.Observe(took.Seconds())
	}
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
