package plan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisiscommand"

var (
	plansCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "created_total",
			Help:      "Total response plans created by crisis type and severity",
		},
		[]string{"type", "severity"},
	)

	plansCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "completed_total",
			Help:      "Total response plans completed",
		},
	)

	actionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "actions_started_total",
			Help:      "Total actions moved to in-progress by priority",
		},
		[]string{"priority"},
	)

	actionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "actions_completed_total",
			Help:      "Total actions completed by priority",
		},
		[]string{"priority"},
	)

	actionsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "actions_failed_total",
			Help:      "Total reported action execution failures",
		},
	)
)

func recordPlanCreated(crisisType, severity string) {
	plansCreated.WithLabelValues(crisisType, severity).Inc()
}

func recordPlanCompleted() {
	plansCompleted.Inc()
}

func recordActionStarted(priority string) {
	actionsStarted.WithLabelValues(priority).Inc()
}

func recordActionCompleted(priority string) {
	actionsCompleted.WithLabelValues(priority).Inc()
}

func recordActionFailed() {
	actionsFailed.Inc()
}
