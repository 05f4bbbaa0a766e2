package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisiscommand"

var deliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Total notification delivery attempts by channel and outcome",
	},
	[]string{"channel", "outcome"},
)

func recordDelivery(channel, outcome string) {
	deliveries.WithLabelValues(channel, outcome).Inc()
}
