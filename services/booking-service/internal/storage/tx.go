package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// validID guards uuid columns against malformed ids, which Postgres rejects with 22P02.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// pgTx implements booking.Tx on one Postgres transaction.
type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ booking.Tx = (*pgTx)(nil)

func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, businessID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return "", err
	}
	// A concurrent request with the same key blocks here until the first one commits.
	var bookingID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&bookingID)
	return bookingID, err
}

func (t *pgTx) FinalizeIdempotencyKey(ctx context.Context, businessID, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, bookingID)
	return err
}

func (t *pgTx) LockBusinessDay(ctx context.Context, businessID string, date model.Date) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, businessID+":"+date.String())
	return err
}

func (t *pgTx) LockBusinessMonth(ctx context.Context, businessID string, month model.Date) error {
	key := fmt.Sprintf("%s:month:%04d-%02d", businessID, month.Year, int(month.Month))
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (t *pgTx) CountCreatedBookings(ctx context.Context, businessID string, from, to time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE business_id = $1
			AND created_at >= $2
			AND created_at < $3
	`, businessID, from, to).Scan(&n)
	return n, err
}

func (t *pgTx) ListConfirmed(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error) {
	return listConfirmed(ctx, t.tx, businessID, from, to)
}

func (t *pgTx) GetBooking(ctx context.Context, businessID, bookingID string) (model.Booking, error) {
	if !validID(bookingID) {
		return model.Booking{}, model.ErrNotFound
	}
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND business_id = $2
	`, bookingID, businessID))
	return b, mapError(err)
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, businessID, bookingID string) (model.Booking, error) {
	if !validID(bookingID) {
		return model.Booking{}, model.ErrNotFound
	}
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, bookingID, businessID))
	return b, mapError(err)
}

func (t *pgTx) ListElapsedForUpdate(ctx context.Context, endedBy time.Time, limit int) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed' AND ends_at <= $1
		ORDER BY ends_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, endedBy, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	b.ID = uuid.NewString()
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, business_id, staff_id, service_id, scheduled_at, duration_minutes, ends_at, status,
			 client_name, client_email, client_phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, b.ID, b.BusinessID, nullable(b.StaffID), b.ServiceID, b.ScheduledAt, b.DurationMinutes, b.EndsAt(), string(b.Status),
		b.Client.Name, b.Client.Email, b.Client.Phone, b.Notes).Scan(&b.CreatedAt)
	if err != nil {
		b.ID = ""
		return mapError(err)
	}
	return nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, b model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
			cancelled_at = $4,
			cancel_reason = $5,
			completed_at = $6,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, b.ID, b.BusinessID, string(b.Status), b.CancelledAt, b.CancelReason, b.CompletedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
