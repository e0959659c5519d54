package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoiceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bchhub_invoice_transitions_total",
		Help: "Persisted invoice status transitions.",
	}, []string{"from", "to"})

	evidenceSourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bchhub_evidence_source_errors_total",
		Help: "Evidence source lookups that failed without a definitive answer.",
	}, []string{"source"})

	reconcilePassFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchhub_reconcile_pass_failures_total",
		Help: "Reconciliation passes where every evidence source failed.",
	})

	reconcileCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bchhub_reconcile_cycle_seconds",
		Help:    "Duration of a full reconciliation cycle.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	payoutsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchhub_payouts_forwarded_total",
		Help: "Payout transactions broadcast to the payout wallet.",
	})
)
