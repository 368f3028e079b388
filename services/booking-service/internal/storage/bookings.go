package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id::text, business_id::text, staff_id::text, service_id::text, scheduled_at, duration_minutes,
	status, client_name, client_email, client_phone, notes, cancelled_at, cancel_reason, completed_at, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var staffID *string
	var status string
	err := row.Scan(
		&b.ID,
		&b.BusinessID,
		&staffID,
		&b.ServiceID,
		&b.ScheduledAt,
		&b.DurationMinutes,
		&status,
		&b.Client.Name,
		&b.Client.Email,
		&b.Client.Phone,
		&b.Notes,
		&b.CancelledAt,
		&b.CancelReason,
		&b.CompletedAt,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.StaffID = deref(staffID)
	b.Status = model.Status(status)
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepository) Begin(ctx context.Context) (booking.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, outbox: r.outbox}, nil
}

// ListConfirmed reads outside any write transaction; used for slot listing.
func (r *BookingRepository) ListConfirmed(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error) {
	return listConfirmed(ctx, r.pool, businessID, from, to)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listConfirmed(ctx context.Context, q querier, businessID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1
			AND status = 'confirmed'
			AND scheduled_at < $3
			AND ends_at > $2
		ORDER BY scheduled_at ASC
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// ListByBusiness returns bookings of any status, newest first. A zero From/To leaves that
// side open.
func (r *BookingRepository) ListByBusiness(ctx context.Context, businessID string, f ListFilter) ([]model.Booking, error) {
	if !validID(businessID) {
		return nil, nil
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1
			AND ($2::timestamptz IS NULL OR scheduled_at >= $2)
			AND ($3::timestamptz IS NULL OR scheduled_at < $3)
		ORDER BY scheduled_at DESC
		LIMIT $4
	`, businessID, from, to, f.Limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}
