package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all client metrics
type Metrics struct {
	// Session counters
	FramesReceived  atomic.Uint64
	CaptureRequests atomic.Uint64
	CapturesOK      atomic.Uint64
	CapturesFailed  atomic.Uint64
	CaptureTimeouts atomic.Uint64

	// Transport counters
	Reconnects      atomic.Uint64
	DecodeErrors    atomic.Uint64
	SendErrors      atomic.Uint64
	PingsSent       atomic.Uint64
	Connected       atomic.Uint64 // 0 = disconnected, 1 = connected
	BytesReceived   atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"vrs_frames_received_total", "Total live frames received from the station", m.FramesReceived.Load},
		{"vrs_capture_requests_total", "Total capture requests issued", m.CaptureRequests.Load},
		{"vrs_captures_ok_total", "Total capture requests resolved successfully", m.CapturesOK.Load},
		{"vrs_captures_failed_total", "Total capture requests that failed on the station", m.CapturesFailed.Load},
		{"vrs_capture_timeouts_total", "Total capture requests that timed out", m.CaptureTimeouts.Load},
		{"vrs_reconnects_total", "Total reconnect attempts scheduled", m.Reconnects.Load},
		{"vrs_decode_errors_total", "Total inbound payloads dropped as malformed", m.DecodeErrors.Load},
		{"vrs_send_errors_total", "Total outbound messages lost while disconnected", m.SendErrors.Load},
		{"vrs_pings_sent_total", "Total keepalive pings sent", m.PingsSent.Load},
		{"vrs_connected", "Connection state (0=disconnected, 1=connected)", m.Connected.Load},
		{"vrs_bytes_received_total", "Total transport bytes received", m.BytesReceived.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
