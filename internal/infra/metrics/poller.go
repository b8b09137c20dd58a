package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		pollTicksTotal,
		pollErrorsTotal,
	)
}

var (
	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_poll_ticks_total",
			Help: "Status fetches issued by pollers, by reported status.",
		},
		[]string{"status"},
	)

	pollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "status_poll_errors_total",
			Help: "Transient status-fetch failures swallowed by pollers.",
		},
	)
)

func IncPollTick(status string) {
	pollTicksTotal.WithLabelValues(norm(status)).Inc()
}

func IncPollError() {
	pollErrorsTotal.Inc()
}
