package mfu

import "github.com/prometheus/client_golang/prometheus"

var (
	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "notifications_total",
		Help:      "Lifecycle notifications handled, by kind and outcome.",
	}, []string{"kind", "outcome"})

	decayedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "decayed_rows_total",
		Help:      "Rows whose count was reduced by decay.",
	})

	prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "pruned_rows_total",
		Help:      "Rows removed by pruning.",
	})

	resolveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "resolve_failures_total",
		Help:      "Ranked keys dropped because they no longer resolve.",
	})

	asyncDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "async_dropped_total",
		Help:      "Async notifications dropped because the tracker was closed.",
	})

	deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfu",
		Name:      "observer_deliveries_total",
		Help:      "Ranked lists delivered to observers.",
	})

	observersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mfu",
		Name:      "observers",
		Help:      "Currently registered observers.",
	})
)

func init() {
	prometheus.MustRegister(notifications, decayedRows, prunedRows, resolveFailures, asyncDropped, deliveries, observersGauge)
}

func countNotification(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	notifications.WithLabelValues(kind, outcome).Inc()
}
