package infra

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics_CountsDecisionsByResult(t *testing.T) {
	m := NewPromMetrics(prometheus.NewRegistry())

	m.Observe("auth", true)
	m.Observe("auth", true)
	m.Observe("auth", false)
	m.Degraded("auth")

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("auth", "allowed")); got != 2 {
		t.Fatalf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("auth", "denied")); got != 1 {
		t.Fatalf("expected 1 denied, got %v", got)
	}
	if got := testutil.ToFloat64(m.degraded.WithLabelValues("auth")); got != 1 {
		t.Fatalf("expected 1 degraded, got %v", got)
	}
}
