package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions    *prometheus.CounterVec
	routed         *prometheus.CounterVec
	zeroRecipients *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jorf",
			Name:      "transitions_total",
			Help:      "Committed request lifecycle transitions.",
		}, []string{"event"}),
		routed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jorf",
			Name:      "notifications_routed_total",
			Help:      "Notification records produced by the router.",
		}, []string{"event"}),
		zeroRecipients: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jorf",
			Name:      "notifications_zero_recipients_total",
			Help:      "Events whose recipient resolution yielded nobody.",
		}, []string{"event", "reason"}),
		deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jorf",
			Name:      "notification_deliveries_total",
			Help:      "Delivery attempts by outcome.",
		}, []string{"result"}),
	}
})

// ObserveTransition counts a committed lifecycle event.
func ObserveTransition(event string) {
	metricsSingleton().transitions.WithLabelValues(event).Inc()
}
