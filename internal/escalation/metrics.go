package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisiscommand"

var (
	ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "ticks_total",
			Help:      "Total evaluation passes run",
		},
	)

	evaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "crises_evaluated_total",
			Help:      "Total active crises considered across all passes",
		},
	)

	skipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "crises_skipped_total",
			Help:      "Total crises skipped because an evaluation was already in flight",
		},
	)

	escalationsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "triggered_total",
			Help:      "Total escalations by trigger",
		},
		[]string{"trigger"},
	)
)

func recordTick(crisisCount int) {
	ticks.Inc()
	evaluated.Add(float64(crisisCount))
}

func recordSkipped() {
	skipped.Inc()
}

func recordEscalation(trigger string) {
	escalationsTriggered.WithLabelValues(trigger).Inc()
}
