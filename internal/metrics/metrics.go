package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Outbound messages by stage and kind",
		},
		[]string{"stage", "kind"}, // sent|failed , first|second
	)

	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"}, // sent|failed|waiting|finished|halted
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_active_connections",
			Help: "Connections confirmed connected by the last reconciliation pass",
		},
	)

	SupervisorFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_supervisor_faults_total",
			Help: "Faults reported to the supervisor by source and class",
		},
		[]string{"source", "class"}, // class: transient|fatal
	)

	SupervisorRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_supervisor_restarts_total",
			Help: "Completed restart cleanups",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_channel_events_total",
			Help: "Channel lifecycle events consumed by type",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() { mustRegister(r) })
}

func mustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesTotal,
		TicksTotal,
		ActiveConnections,
		SupervisorFaults,
		SupervisorRestarts,
		EventsTotal,
	)
}
