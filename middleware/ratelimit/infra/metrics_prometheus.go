package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics implementa domain.MetricsHook exportando contadores Prometheus
// por política. As labels são só (policy, result): chave de caller aqui
// explodiria a cardinalidade das séries.
type PromMetrics struct {
	decisions *prometheus.CounterVec
	degraded  *prometheus.CounterVec
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Admission decisions by policy and result.",
		}, []string{"policy", "result"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "degraded_total",
			Help:      "Fail-open decisions taken while the shared store was unavailable.",
		}, []string{"policy"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.degraded)
	}
	return m
}

func (m *PromMetrics) Observe(policy string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.decisions.WithLabelValues(policy, result).Inc()
}

func (m *PromMetrics) Degraded(policy string) {
	m.degraded.WithLabelValues(policy).Inc()
}
