package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// Store opens write transactions. Every booking write runs inside one.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the transactional storage surface the booking workflow uses.
type Tx interface {
	// ClaimIdempotencyKey locks (business, key). It returns the booking id recorded for a
	// finished request, or "" when the caller now owns the key.
	ClaimIdempotencyKey(ctx context.Context, businessID, key string) (string, error)
	FinalizeIdempotencyKey(ctx context.Context, businessID, key, bookingID string) error

	// LockBusinessDay serializes writers for one business and local date until commit.
	LockBusinessDay(ctx context.Context, businessID string, date model.Date) error
	// LockBusinessMonth serializes quota checks for one business and calendar month.
	// Callers holding it take LockBusinessDay afterwards, never before.
	LockBusinessMonth(ctx context.Context, businessID string, month model.Date) error
	// CountCreatedBookings counts bookings of any status created in [from, to).
	CountCreatedBookings(ctx context.Context, businessID string, from, to time.Time) (int, error)
	ListConfirmed(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error)

	GetBooking(ctx context.Context, businessID, bookingID string) (model.Booking, error)
	GetBookingForUpdate(ctx context.Context, businessID, bookingID string) (model.Booking, error)
	ListElapsedForUpdate(ctx context.Context, endedBy time.Time, limit int) ([]model.Booking, error)
	// InsertBooking assigns ID and CreatedAt. An overlapping confirmed booking for the
	// same staff surfaces as model.ErrConflict.
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBookingStatus(ctx context.Context, b model.Booking) error

	InsertEvent(ctx context.Context, evt outbox.Event) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Catalog reads staff records owned by the business admin.
type Catalog interface {
	EligibleStaff(ctx context.Context, businessID, serviceID string) ([]model.StaffMember, error)
}

// Notifier receives confirmed bookings after commit. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, b model.Business, svc model.Service, booking model.Booking)
}
