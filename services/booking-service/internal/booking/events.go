package booking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// EventPayload is the JSON body of booking.*.v1 events.
type EventPayload struct {
	BookingID       string `json:"booking_id"`
	BusinessID      string `json:"business_id"`
	StaffID         string `json:"staff_id,omitempty"`
	ServiceID       string `json:"service_id"`
	ScheduledAt     string `json:"scheduled_at"`
	EndsAt          string `json:"ends_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ClientPhone     string `json:"client_phone"`
	Notes           string `json:"notes,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	Actor           string `json:"actor"`
}

var topicByStatus = map[model.Status]string{
	model.StatusConfirmed: outbox.TopicBookingConfirmed,
	model.StatusCancelled: outbox.TopicBookingCancelled,
	model.StatusCompleted: outbox.TopicBookingCompleted,
}

func newEvent(b model.Booking, actor string) (outbox.Event, error) {
	p := EventPayload{
		BookingID:       b.ID,
		BusinessID:      b.BusinessID,
		StaffID:         b.StaffID,
		ServiceID:       b.ServiceID,
		ScheduledAt:     b.ScheduledAt.UTC().Format(time.RFC3339),
		EndsAt:          b.EndsAt().UTC().Format(time.RFC3339),
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		ClientName:      b.Client.Name,
		ClientEmail:     b.Client.Email,
		ClientPhone:     b.Client.Phone,
		Notes:           b.Notes,
		CancelReason:    b.CancelReason,
		Actor:           actor,
	}
	if b.CancelledAt != nil {
		p.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	if b.CompletedAt != nil {
		p.CompletedAt = b.CompletedAt.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("marshal %s event: %w", b.Status, err)
	}
	return outbox.Event{
		AggregateType: outbox.AggregateBooking,
		AggregateID:   b.ID,
		EventType:     topicByStatus[b.Status],
		Payload:       payload,
	}, nil
}
