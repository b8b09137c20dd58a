package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		intentsCreatedTotal,
		outcomesTotal,
		finalizeWarningsTotal,
		restoreTotal,
	)
}

var (
	intentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_created_total",
			Help: "Payment intents created on the gateway, by purpose.",
		},
		[]string{"purpose"},
	)

	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Terminal intent outcomes (succeeded/failed/expired/cancelled), by purpose.",
		},
		[]string{"purpose", "outcome"},
	)

	finalizeWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_finalize_warnings_total",
			Help: "Settled payments whose local finalize call failed (degraded success).",
		},
	)

	restoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_restore_total",
			Help: "RestoreOnLoad results per purpose slot (resumed/stale_discarded/empty).",
		},
		[]string{"result"},
	)
)

func IncIntentCreated(purpose string) {
	intentsCreatedTotal.WithLabelValues(norm(purpose)).Inc()
}

func IncOutcome(purpose, outcome string) {
	outcomesTotal.WithLabelValues(norm(purpose), norm(outcome)).Inc()
}

func IncFinalizeWarning() {
	finalizeWarningsTotal.Inc()
}

func IncRestore(result string) {
	restoreTotal.WithLabelValues(norm(result)).Inc()
}
