// Package stats exposes the server's operational counters as Prometheus
// collectors. The registry is supplied by the caller; nothing registers
// globally.
package stats

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors the acceptor and request pipeline update.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsOpen     prometheus.Gauge

	// Requests counts handled requests by status class ("2xx".."5xx").
	Requests *prometheus.CounterVec

	PipelineErrors  prometheus.Counter
	MultipartSpills prometheus.Counter
}

// New builds the metric set and registers it with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goapi_connections_accepted_total",
			Help: "Connections accepted by the listener.",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goapi_connections_open",
			Help: "Connections currently being served.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goapi_requests_total",
			Help: "Requests handled, by status class.",
		}, []string{"class"}),
		PipelineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goapi_pipeline_errors_total",
			Help: "Errors caught at the per-request boundary.",
		}),
		MultipartSpills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goapi_multipart_spills_total",
			Help: "Request bodies streamed to temp files.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ConnectionsAccepted,
			m.ConnectionsOpen,
			m.Requests,
			m.PipelineErrors,
			m.MultipartSpills,
		)
	}
	return m
}

// ObserveStatus bumps the request counter for a status code's class.
func (m *Metrics) ObserveStatus(status int) {
	var class string
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	case status >= 200:
		class = "2xx"
	default:
		class = "1xx"
	}
	m.Requests.WithLabelValues(class).Inc()
}
