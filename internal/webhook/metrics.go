package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_callbacks_total",
			Help: "Provider callbacks by provider, kind and outcome",
		},
		[]string{"provider", "kind", "outcome"},
	)

	auditFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_audit_failures_total",
			Help: "Audit log writes that failed; the callback was still acknowledged",
		},
		[]string{"provider", "kind"},
	)

	sideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_side_effect_failures_total",
			Help: "Best-effort side effects that failed, by stage (mutation, publish, status)",
		},
		[]string{"provider", "kind", "stage"},
	)
)
