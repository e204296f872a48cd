package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the gateway's Prometheus collectors, registered on their own
// registry so several servers can coexist in one process
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	UpstreamLatency  prometheus.Histogram
	StreamedBytes    prometheus.Counter
	ConversationSize prometheus.Histogram
}

// NewMetrics creates and registers the gateway collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of gateway HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Gateway request duration including the streamed reply",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "endpoint"},
		),
		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "upstream_errors_total",
				Help:      "Upstream chat completion failures by upstream status",
			},
			[]string{"status"},
		),
		UpstreamLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "upstream_first_byte_seconds",
				Help:      "Time until the upstream answered with response headers",
				Buckets:   prometheus.DefBuckets,
			},
		),
		StreamedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "streamed_bytes_total",
				Help:      "Bytes relayed from the upstream to clients",
			},
		),
		ConversationSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jl",
				Subsystem: "gateway",
				Name:      "conversation_messages",
				Help:      "Number of client messages per chat request",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.UpstreamErrors,
		m.UpstreamLatency,
		m.StreamedBytes,
		m.ConversationSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
