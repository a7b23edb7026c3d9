package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the session-control core.
// A nil *Metrics is valid and records nothing, so wiring metrics is
// optional for one-shot CLI invocations.
type Metrics struct {
	kicksTotal      *prometheus.CounterVec
	sessionsClosed  prometheus.Counter
	staleSwept      prometheus.Counter
	bridgeCommands  *prometheus.CounterVec
	bridgeLatency   *prometheus.HistogramVec
	disconnectsSent *prometheus.CounterVec
}

// New creates and registers all metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		kicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radbridge_kicks_total",
			Help: "Session kicks processed, by wire outcome",
		}, []string{"outcome"}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radbridge_sessions_closed_total",
			Help: "Accounting rows closed by admin disconnects",
		}),
		staleSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radbridge_stale_sessions_swept_total",
			Help: "Accounting rows closed by the stale-session sweeper",
		}),
		bridgeCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radbridge_router_commands_total",
			Help: "Router control-plane commands, by operation and result",
		}, []string{"op", "result"}),
		bridgeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radbridge_router_command_duration_seconds",
			Help:    "Router control-plane command latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		disconnectsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radbridge_disconnect_requests_total",
			Help: "RADIUS Disconnect-Requests attempted, by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.kicksTotal,
		m.sessionsClosed,
		m.staleSwept,
		m.bridgeCommands,
		m.bridgeLatency,
		m.disconnectsSent,
	)
	return m
}

// RecordKick counts one processed kick with its reason.
func (m *Metrics) RecordKick(outcome string, closed int64) {
	if m == nil {
		return
	}
	m.kicksTotal.WithLabelValues(outcome).Inc()
	m.sessionsClosed.Add(float64(closed))
}

// RecordDisconnect counts one Disconnect-Request attempt.
func (m *Metrics) RecordDisconnect(outcome string) {
	if m == nil {
		return
	}
	m.disconnectsSent.WithLabelValues(outcome).Inc()
}

// RecordSweep counts accounting rows closed by a sweep.
func (m *Metrics) RecordSweep(closed int64) {
	if m == nil {
		return
	}
	m.staleSwept.Add(float64(closed))
}

// RecordBridgeCommand counts one router command and its latency.
func (m *Metrics) RecordBridgeCommand(op, result string, seconds float64) {
	if m == nil {
		return
	}
	m.bridgeCommands.WithLabelValues(op, result).Inc()
	m.bridgeLatency.WithLabelValues(op).Observe(seconds)
}

// Serve exposes the default registry on addr/metrics. It blocks, so
// callers run it in a goroutine.
func Serve(addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
