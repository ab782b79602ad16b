package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the negotiation engine.
type Metrics struct {
	registry       *prometheus.Registry
	ActiveSessions *prometheus.GaugeVec
	Rounds         *prometheus.HistogramVec
	Frames         *prometheus.CounterVec
	LLMRetries     *prometheus.CounterVec
	CodeGenResults *prometheus.CounterVec
	TransportErrs  *prometheus.CounterVec
	SessionSeconds *prometheus.HistogramVec
}

// NewMetrics constructs a metrics registry with negotiation collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentmesh_negotiation_active_sessions",
		Help: "Active negotiation sessions by role",
	}, []string{"role"})

	rounds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentmesh_negotiation_rounds",
		Help:    "Negotiation rounds until terminal status",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 10, 15, 20},
	}, []string{"role", "outcome"})

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmesh_negotiation_frames_total",
		Help: "Meta-protocol frames by kind and direction",
	}, []string{"kind", "direction"})

	llmRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmesh_negotiation_llm_retries_total",
		Help: "LLM evaluation retries by role",
	}, []string{"role"})

	codegen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmesh_codegen_results_total",
		Help: "Code generation outcomes",
	}, []string{"result"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmesh_transport_errors_total",
		Help: "Transport-level errors by reason",
	}, []string{"reason"})

	seconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentmesh_negotiation_session_seconds",
		Help:    "Session wall-clock duration from start to terminal status",
		Buckets: prometheus.DefBuckets,
	}, []string{"role", "outcome"})

	reg.MustRegister(active, rounds, frames, llmRetries, codegen, trErrors, seconds)

	return &Metrics{
		registry:       reg,
		ActiveSessions: active,
		Rounds:         rounds,
		Frames:         frames,
		LLMRetries:     llmRetries,
		CodeGenResults: codegen,
		TransportErrs:  trErrors,
		SessionSeconds: seconds,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(role string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(role).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(role string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(role).Dec()
}

// RecordSession records rounds and duration for a finished session.
func (m *Metrics) RecordSession(role, outcome string, rounds int, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Rounds.WithLabelValues(role, outcome).Observe(float64(rounds))
	m.SessionSeconds.WithLabelValues(role, outcome).Observe(duration.Seconds())
}

// RecordFrame counts one frame by kind and direction ("in" or "out").
func (m *Metrics) RecordFrame(kind, direction string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(kind, direction).Inc()
}

// RecordLLMRetry counts one evaluation retry.
func (m *Metrics) RecordLLMRetry(role string) {
	if m == nil {
		return
	}
	m.LLMRetries.WithLabelValues(role).Inc()
}

// RecordCodeGen counts a code generation outcome ("ok" or "error").
func (m *Metrics) RecordCodeGen(result string) {
	if m == nil {
		return
	}
	m.CodeGenResults.WithLabelValues(result).Inc()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(reason).Inc()
}
