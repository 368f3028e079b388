package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateBooking = "booking"

	TopicBookingConfirmed = "booking.confirmed.v1"
	TopicBookingCancelled = "booking.cancelled.v1"
	TopicBookingCompleted = "booking.completed.v1"
)
