package crisis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisiscommand"

var (
	crisesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crisis",
			Name:      "detected_total",
			Help:      "Total crises detected by type and severity",
		},
		[]string{"type", "severity"},
	)

	statusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crisis",
			Name:      "status_changes_total",
			Help:      "Total lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crisis",
			Name:      "escalations_total",
			Help:      "Total escalation level changes",
		},
		[]string{"from", "to"},
	)

	resolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crisis",
			Name:      "resolution_duration_seconds",
			Help:      "Time from detection to resolution",
			Buckets:   prometheus.ExponentialBuckets(60, 4, 10),
		},
		[]string{"type"},
	)
)

func recordCrisisDetected(crisisType, severity string) {
	crisesDetected.WithLabelValues(crisisType, severity).Inc()
}

func recordStatusChange(status string) {
	statusChanges.WithLabelValues(status).Inc()
}

func recordEscalation(from, to string) {
	escalations.WithLabelValues(from, to).Inc()
}

func recordCrisisResolved(crisisType string, d time.Duration) {
	resolutionDuration.WithLabelValues(crisisType).Observe(d.Seconds())
}
