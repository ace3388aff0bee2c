package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersaga_ledger_operations_total",
		Help: "Inventory ledger operations by result.",
	}, []string{"op", "result"})

	ledgerPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersaga_ledger_persist_failures_total",
		Help: "Ledger snapshots that could not be saved.",
	})

	ledgerStaleSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersaga_ledger_stale_snapshots_total",
		Help: "Ledger snapshots skipped because a newer one was already saved.",
	})

	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersaga_payments_total",
		Help: "Simulated payment attempts by result.",
	}, []string{"result"})

	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersaga_orders_total",
		Help: "Closed order runs by outcome.",
	}, []string{"outcome"})
)
