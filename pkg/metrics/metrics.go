// Package metrics exposes Prometheus instrumentation for the payment
// reconciliation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileTotal counts reconciliation attempts by outcome
	// (applied, already_applied, busy, gateway_error, not_successful,
	// insufficient_amount, apply_failed, invalid).
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ajopool_reconcile_total",
		Help: "Payment reconciliation attempts by outcome.",
	}, []string{"outcome"})

	// GatewayVerifyDuration observes the latency of gateway verification calls.
	GatewayVerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ajopool_gateway_verify_duration_seconds",
		Help:    "Latency of payment gateway verification calls.",
		Buckets: prometheus.DefBuckets,
	})

	// CyclesCompleted counts completed contribution cycles.
	CyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ajopool_cycles_completed_total",
		Help: "Contribution cycles closed with a payout.",
	})

	// JoinRequestsExpired counts join requests expired by the sweeper.
	JoinRequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ajopool_join_requests_expired_total",
		Help: "Join requests expired after the payment window elapsed.",
	})
)
