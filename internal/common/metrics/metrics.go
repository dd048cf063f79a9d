// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_requests_total",
			Help: "Total number of enrollment requests by outcome",
		},
		[]string{"outcome"},
	)

	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_promotions_total",
			Help: "Total number of waitlist promotions",
		},
	)

	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Total number of outbox events published to the bus",
		},
	)

	NotificationSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sends_total",
			Help: "Total number of SMS send attempts by result",
		},
		[]string{"result"},
	)

	NotificationsAbandonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_abandoned_total",
			Help: "Total number of notification events abandoned after retry exhaustion",
		},
	)

	NotificationSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "notification_send_duration_seconds",
			Help: "Duration of SMS gateway calls in seconds",
		},
	)

	SessionsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_completed_total",
			Help: "Total number of sessions auto-completed at start time",
		},
	)
)
