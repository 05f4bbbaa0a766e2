package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisiscommand"

var eventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total outbound events published by type",
	},
	[]string{"event_type"},
)

func recordEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}
