package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupbuy_settlement_checks_total",
		Help: "Settlement checks run, labelled by derived outcome.",
	}, []string{"outcome"})

	SettlementPayments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupbuy_settlement_payments_total",
		Help: "Settlement debts paid by group leaders.",
	})

	GroupsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupbuy_groups_finalized_total",
		Help: "Groups closed by the expiry sweeper, labelled by final status.",
	}, []string{"status"})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupbuy_sweep_runs_total",
		Help: "Expiry sweeper ticks executed.",
	})
)
