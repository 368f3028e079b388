package availability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// BookingSource reads confirmed bookings of a business overlapping [from, to).
type BookingSource interface {
	ListConfirmed(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error)
}

type Engine struct {
	calendar  Calendar
	slots     SlotGenerator
	conflicts ConflictChecker
	bookings  BookingSource
	now       func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(calendar Calendar, slots SlotGenerator, conflicts ConflictChecker, bookings BookingSource, opts ...Option) *Engine {
	e := &Engine{
		calendar:  calendar,
		slots:     slots,
		conflicts: conflicts,
		bookings:  bookings,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Now() time.Time { return e.now() }

// AvailableSlots returns the bookable start times for service on date, in the business
// timezone. A closed day yields an empty list and no error.
func (e *Engine) AvailableSlots(ctx context.Context, b model.Business, staffID string, svc model.Service, date model.Date) ([]time.Time, error) {
	if svc.DurationMinutes <= 0 {
		return nil, model.Invalid("duration_minutes", "must be positive")
	}
	open, ok := e.calendar.Resolve(b, date)
	if !ok {
		return []time.Time{}, nil
	}

	existing, err := e.bookings.ListConfirmed(ctx, b.ID, open.Primary.Start, open.Primary.End)
	if err != nil {
		return nil, fmt.Errorf("list confirmed bookings: %w", err)
	}

	duration := svc.Duration()
	out := []time.Time{}
	for start := range e.slots.Generate(open.Primary, open.Excluded, duration, e.now()) {
		if e.conflicts.HasConflict(model.Interval{Start: start, End: start.Add(duration)}, staffID, existing) {
			continue
		}
		out = append(out, start)
	}
	return out, nil
}

// CheckSlot re-validates one requested start against existing bookings. It returns
// ErrPastTime, ErrOutsideWorkingHours, ErrOffGrid or ErrConflict.
func (e *Engine) CheckSlot(b model.Business, staffID string, svc model.Service, start time.Time, existing []model.Booking) error {
	if svc.DurationMinutes <= 0 {
		return model.Invalid("duration_minutes", "must be positive")
	}
	now := e.now()
	if !start.After(now) {
		return model.ErrPastTime
	}

	local := start.In(b.Location())
	open, ok := e.calendar.Resolve(b, model.DateOf(local))
	if !ok {
		return model.ErrOutsideWorkingHours
	}
	duration := svc.Duration()
	if !e.slots.Valid(open.Primary, open.Excluded, duration, now, local) {
		return model.ErrOutsideWorkingHours
	}
	if !e.slots.OnGrid(open.Primary, local) {
		return model.ErrOffGrid
	}
	if e.conflicts.HasConflict(model.Interval{Start: local, End: local.Add(duration)}, staffID, existing) {
		return model.ErrConflict
	}
	return nil
}

// Offered reports whether start is one of slots.
func Offered(slots []time.Time, start time.Time) bool {
	return slices.ContainsFunc(slots, start.Equal)
}
