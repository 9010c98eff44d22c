package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records orchestrator outcomes and per-step timings.
type SettlementMetrics struct {
	stepDuration   *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	verifyAttempts prometheus.Counter
	refunds        prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_step_duration_seconds",
		Help:    "Duration of solver steps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Terminal settlement outcomes by status.",
	}, []string{"status"})
	verifyAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_chain_verify_attempts_total",
		Help: "On-chain funding verification attempts.",
	})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_compensating_refunds_total",
		Help: "Compensating ledger credits issued after late-stage failures.",
	})
	reg.MustRegister(stepDuration, outcomes, verifyAttempts, refunds)
	return &SettlementMetrics{
		stepDuration:   stepDuration,
		outcomes:       outcomes,
		verifyAttempts: verifyAttempts,
		refunds:        refunds,
	}
}

// ObserveStep records the duration for the named solver step.
func (m *SettlementMetrics) ObserveStep(step string, duration time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(normalizeLabel(step)).Observe(duration.Seconds())
}

// IncOutcome increments the terminal outcome counter for the given status.
func (m *SettlementMetrics) IncOutcome(status string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncVerifyAttempt counts one chain verification attempt.
func (m *SettlementMetrics) IncVerifyAttempt() {
	if m == nil || m.verifyAttempts == nil {
		return
	}
	m.verifyAttempts.Inc()
}

// IncRefund counts one compensating credit.
func (m *SettlementMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
