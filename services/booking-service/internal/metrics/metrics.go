package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booking_service"

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking create attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status changes by target status and actor.",
		},
		[]string{"status", "actor"},
	)

	slotQueries = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_query_duration_seconds",
			Help:      "Time to compute available slots.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Booking notifications by result.",
		},
		[]string{"result"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to Kafka by event type.",
		},
		[]string{"event_type"},
	)

	consumedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_events_total",
			Help:      "Kafka events consumed by topic and result.",
		},
		[]string{"topic", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, bookingTransitions, slotQueries, notifications, outboxPublished, consumedEvents)
	})
}

func IncBookingAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func IncBookingTransition(status, actor string) {
	bookingTransitions.WithLabelValues(status, actor).Inc()
}

func ObserveSlotQuery(result string, d time.Duration) {
	slotQueries.WithLabelValues(result).Observe(d.Seconds())
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func IncOutboxPublished(eventType string) {
	outboxPublished.WithLabelValues(eventType).Inc()
}

func IncConsumedEvent(topic, result string) {
	consumedEvents.WithLabelValues(topic, result).Inc()
}
