package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions is the total number of attempted ticket transitions.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_ticket_transitions_total",
			Help: "Total number of attempted ticket transitions",
		},
		[]string{"transition", "outcome"},
	)

	// Tickets is the number of live tickets.
	Tickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lifecycle_tickets",
			Help: "Number of live tickets",
		},
		[]string{"status"},
	)

	// TimerFirings is the total number of timers that reached the engine.
	TimerFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_timer_firings_total",
			Help: "Total number of timers that fired",
		},
		[]string{"kind", "outcome"},
	)

	// SideEffectFailures is the total number of best effort steps that failed.
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_side_effect_failures_total",
			Help: "Total number of best effort side effects that failed",
		},
		[]string{"step"},
	)
)

const (
	transitionCreate    = "create"
	transitionClose     = "close"
	transitionAutoClose = "auto_close"
	transitionExpire    = "expire"
	transitionDelete    = "delete"

	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeNoop     = "noop"
	outcomeFailed   = "failed"
	outcomeRetry    = "retry"
)
