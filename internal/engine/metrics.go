package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordersaga_step_duration_seconds",
		Help:    "Saga step duration in seconds.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"step", "result"})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordersaga_runs_in_flight",
		Help: "Saga runs currently executing.",
	})

	runsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersaga_runs_closed_total",
		Help: "Closed saga runs by status.",
	}, []string{"status"})
)
