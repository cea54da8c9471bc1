// Package metrics exposes the proxy's Prometheus collectors. Variables
// are registered once via Init and updated by the components that own
// the underlying state, mirroring the teacher's package-level collector
// idiom.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodeUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlfront_node_up",
			Help: "Whether a node is currently enabled for routing (1) or disabled (0).",
		},
		[]string{"node"},
	)

	NodeAvgLatencySeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlfront_node_avg_latency_seconds",
			Help: "Rolling average read latency observed for a node.",
		},
		[]string{"node"},
	)

	CommandLogDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlfront_command_log_depth",
			Help: "Number of pending commands journaled for a node.",
		},
		[]string{"node"},
	)

	ReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlfront_replays_total",
			Help: "Command log replays by outcome.",
		},
		[]string{"node", "outcome"},
	)

	ReadRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlfront_read_requests_total",
			Help: "Read-path requests handled by the executor facade, by outcome.",
		},
		[]string{"outcome"},
	)

	WriteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlfront_write_requests_total",
			Help: "Write-path requests handled by the executor facade, by outcome.",
		},
		[]string{"outcome"},
	)
)

var registered = false

// Init registers all collectors with the default Prometheus registry.
// Safe to call more than once.
func Init() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(
		NodeUp,
		NodeAvgLatencySeconds,
		CommandLogDepth,
		ReplaysTotal,
		ReadRequestsTotal,
		WriteRequestsTotal,
	)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetNodeUp records whether a node is enabled.
func SetNodeUp(node string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	NodeUp.WithLabelValues(node).Set(v)
}

// SetNodeAvgLatency records a node's rolling average latency.
func SetNodeAvgLatency(node string, d time.Duration) {
	NodeAvgLatencySeconds.WithLabelValues(node).Set(d.Seconds())
}

// SetCommandLogDepth records the number of commands pending for node.
func SetCommandLogDepth(node string, depth int) {
	CommandLogDepth.WithLabelValues(node).Set(float64(depth))
}

// ObserveReplay records a replay outcome for node.
func ObserveReplay(node string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	ReplaysTotal.WithLabelValues(node, outcome).Inc()
}

// ObserveRead records a read-path outcome.
func ObserveRead(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	ReadRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveWrite records a write-path outcome.
func ObserveWrite(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	WriteRequestsTotal.WithLabelValues(outcome).Inc()
}
