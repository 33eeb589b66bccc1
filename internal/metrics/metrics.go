// Package metrics holds the Prometheus collectors shared by the server,
// worker and poller binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer outcomes used as the "outcome" label of Transfers.
const (
	OutcomeInitiated = "initiated"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
)

var (
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Total number of wallet transactions recorded, by type",
		},
		[]string{"type"},
	)

	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transfers_total",
			Help: "Total number of P2P transfers, by outcome",
		},
		[]string{"outcome"},
	)

	Deposits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_deposits_total",
			Help: "Total number of deposits",
		},
	)

	Withdrawals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_withdrawals_total",
			Help: "Total number of withdrawals",
		},
	)

	RecoveryRepublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_recovery_republished_total",
			Help: "Total number of stuck transfers republished by the recovery sweep",
		},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_operation_duration_seconds",
			Help:    "Duration of wallet operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"operation"},
	)
)
