package push

import "github.com/prometheus/client_golang/prometheus"

var (
	pushEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_events_total",
			Help: "Push-channel frames by handling outcome.",
		},
		[]string{"outcome"},
	)
	pushReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_reconnects_total",
			Help: "Push-channel connection attempts after the first.",
		},
	)
	pushResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_resyncs_total",
			Help: "Full session resyncs forced by a reconnect.",
		},
	)
)

func init() {
	prometheus.MustRegister(pushEvents, pushReconnects, pushResyncs)
}
