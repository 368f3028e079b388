package model

import "time"

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type Client struct {
	Name  string
	Email string
	Phone string
}

// Booking is never deleted; cancellations and completions are status changes.
// An empty StaffID means no specific staff member was requested.
type Booking struct {
	ID              string
	BusinessID      string
	StaffID         string
	ServiceID       string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          Status
	Client          Client
	Notes           string
	CancelledAt     *time.Time
	CancelReason    string
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

func (b Booking) EndsAt() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.ScheduledAt, End: b.EndsAt()}
}

func (b Booking) Confirmed() bool {
	return b.Status == StatusConfirmed
}
