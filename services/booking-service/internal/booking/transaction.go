package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ActorClient = "client"
	ActorOwner  = "owner"
	ActorSystem = "system"
)

type CreateRequest struct {
	Business       model.Business
	StaffID        string
	Service        model.Service
	Date           model.Date
	Start          model.Clock
	Client         model.Client
	Notes          string
	IdempotencyKey string
}

// Transaction validates and persists booking writes.
type Transaction struct {
	store    Store
	catalog  Catalog
	engine   *availability.Engine
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewTransaction(store Store, catalog Catalog, engine *availability.Engine, notifier Notifier, logger *slog.Logger) *Transaction {
	return &Transaction{
		store:    store,
		catalog:  catalog,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("booking-service/booking"),
	}
}

// Create books the requested slot. The slot is re-checked inside the write transaction
// against current bookings, so a slot listed earlier may come back as model.ErrConflict.
func (t *Transaction) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	ctx, span := t.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("business.id", req.Business.ID),
		attribute.String("service.id", req.Service.ID),
		attribute.String("staff.id", req.StaffID),
	))
	defer span.End()

	b, replayed, err := t.create(ctx, req)
	outcome := outcomeOf(err)
	if replayed {
		outcome = "replayed"
	}
	metrics.IncBookingAttempt(outcome)
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		if outcome == "error" {
			span.RecordError(err)
		}
		return model.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))

	if !replayed && t.notifier != nil {
		t.notifier.Notify(context.WithoutCancel(ctx), req.Business, req.Service, b)
	}
	return b, nil
}

func (t *Transaction) create(ctx context.Context, req CreateRequest) (model.Booking, bool, error) {
	req.Client = normalizeClient(req.Client)
	if err := validateCreate(req); err != nil {
		return model.Booking{}, false, err
	}

	loc := req.Business.Location()
	start := req.Date.At(req.Start, loc)
	if !start.After(t.engine.Now()) {
		return model.Booking{}, false, model.ErrPastTime
	}

	if req.StaffID != "" {
		if err := t.checkStaff(ctx, req); err != nil {
			return model.Booking{}, false, err
		}
	}

	tx, err := t.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.IdempotencyKey != "" {
		existingID, err := tx.ClaimIdempotencyKey(ctx, req.Business.ID, req.IdempotencyKey)
		if err != nil {
			return model.Booking{}, false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if existingID != "" {
			b, err := tx.GetBooking(ctx, req.Business.ID, existingID)
			if err != nil {
				return model.Booking{}, false, fmt.Errorf("load replayed booking: %w", err)
			}
			return b, true, nil
		}
	}

	// Month before day: every writer takes the locks in this order.
	if req.Business.MonthlyLimitApplies() {
		if err := t.checkMonthlyLimit(ctx, tx, req.Business); err != nil {
			return model.Booking{}, false, err
		}
	}

	if err := tx.LockBusinessDay(ctx, req.Business.ID, req.Date); err != nil {
		return model.Booking{}, false, fmt.Errorf("lock business day: %w", err)
	}

	day := req.Date.Window(loc)
	existing, err := tx.ListConfirmed(ctx, req.Business.ID, day.Start, day.End)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("list confirmed bookings: %w", err)
	}
	if err := t.engine.CheckSlot(req.Business, req.StaffID, req.Service, start, existing); err != nil {
		return model.Booking{}, false, err
	}

	b := model.Booking{
		BusinessID:      req.Business.ID,
		StaffID:         req.StaffID,
		ServiceID:       req.Service.ID,
		ScheduledAt:     start,
		DurationMinutes: req.Service.DurationMinutes,
		Status:          model.StatusConfirmed,
		Client:          req.Client,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if err := tx.InsertBooking(ctx, &b); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return model.Booking{}, false, err
		}
		return model.Booking{}, false, fmt.Errorf("insert booking: %w", err)
	}

	evt, err := newEvent(b, ActorClient)
	if err != nil {
		return model.Booking{}, false, err
	}
	if err := tx.InsertEvent(ctx, evt); err != nil {
		return model.Booking{}, false, err
	}

	if req.IdempotencyKey != "" {
		if err := tx.FinalizeIdempotencyKey(ctx, req.Business.ID, req.IdempotencyKey, b.ID); err != nil {
			return model.Booking{}, false, fmt.Errorf("finalize idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, false, fmt.Errorf("commit: %w", err)
	}
	t.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"business_id", b.BusinessID,
		"staff_id", b.StaffID,
		"scheduled_at", b.ScheduledAt.Format(time.RFC3339),
	)
	return b, false, nil
}

// checkMonthlyLimit counts bookings created in the business-local calendar month of
// now, whatever their status or scheduled date, under a per-(business, month) lock.
func (t *Transaction) checkMonthlyLimit(ctx context.Context, tx Tx, b model.Business) error {
	month := model.DateOf(t.engine.Now().In(b.Location()))
	if err := tx.LockBusinessMonth(ctx, b.ID, month); err != nil {
		return fmt.Errorf("lock business month: %w", err)
	}
	window := month.MonthWindow(b.Location())
	n, err := tx.CountCreatedBookings(ctx, b.ID, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("count monthly bookings: %w", err)
	}
	if n >= b.MonthlyLimit {
		return model.ErrMonthlyLimitReached
	}
	return nil
}

func (t *Transaction) checkStaff(ctx context.Context, req CreateRequest) error {
	staff, err := t.catalog.EligibleStaff(ctx, req.Business.ID, req.Service.ID)
	if err != nil {
		return fmt.Errorf("load eligible staff: %w", err)
	}
	for _, s := range staff {
		if s.ID == req.StaffID {
			return nil
		}
	}
	return model.Invalid("staff_id", "not available for this service")
}

// Cancel moves a confirmed booking to cancelled. Cancelling an already cancelled
// booking returns it unchanged.
func (t *Transaction) Cancel(ctx context.Context, businessID, bookingID, reason string) (model.Booking, error) {
	return t.transition(ctx, businessID, bookingID, model.StatusCancelled, ActorOwner, func(b *model.Booking, now time.Time) {
		b.CancelledAt = &now
		b.CancelReason = strings.TrimSpace(reason)
	})
}

// Complete moves a confirmed booking to completed.
func (t *Transaction) Complete(ctx context.Context, businessID, bookingID string) (model.Booking, error) {
	return t.transition(ctx, businessID, bookingID, model.StatusCompleted, ActorOwner, func(b *model.Booking, now time.Time) {
		b.CompletedAt = &now
	})
}

func (t *Transaction) transition(ctx context.Context, businessID, bookingID string, target model.Status, actor string, apply func(*model.Booking, time.Time)) (model.Booking, error) {
	ctx, span := t.tracer.Start(ctx, "booking."+string(target), trace.WithAttributes(
		attribute.String("business.id", businessID),
		attribute.String("booking.id", bookingID),
	))
	defer span.End()

	tx, err := t.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.GetBookingForUpdate(ctx, businessID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == target {
		return b, nil
	}
	if b.Status != model.StatusConfirmed {
		return model.Booking{}, model.ErrInvalidTransition
	}

	if err := t.applyTransition(ctx, tx, &b, target, actor, apply); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, fmt.Errorf("commit: %w", err)
	}
	metrics.IncBookingTransition(string(target), actor)
	t.logger.Info("booking status changed", "booking_id", b.ID, "business_id", b.BusinessID, "status", b.Status, "actor", actor)
	return b, nil
}

func (t *Transaction) applyTransition(ctx context.Context, tx Tx, b *model.Booking, target model.Status, actor string, apply func(*model.Booking, time.Time)) error {
	b.Status = target
	apply(b, t.engine.Now().UTC())
	if err := tx.UpdateBookingStatus(ctx, *b); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	evt, err := newEvent(*b, actor)
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, evt)
}

// CompleteElapsed marks up to limit confirmed bookings that have ended as completed.
func (t *Transaction) CompleteElapsed(ctx context.Context, limit int) (int, error) {
	tx, err := t.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	elapsed, err := tx.ListElapsedForUpdate(ctx, t.engine.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list elapsed bookings: %w", err)
	}
	if len(elapsed) == 0 {
		return 0, nil
	}
	for i := range elapsed {
		err := t.applyTransition(ctx, tx, &elapsed[i], model.StatusCompleted, ActorSystem, func(b *model.Booking, now time.Time) {
			b.CompletedAt = &now
		})
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	for range elapsed {
		metrics.IncBookingTransition(string(model.StatusCompleted), ActorSystem)
	}
	return len(elapsed), nil
}

func normalizeClient(c model.Client) model.Client {
	return model.Client{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

func validateCreate(req CreateRequest) error {
	if req.Business.ID == "" {
		return model.Invalid("business_id", "required")
	}
	if req.Service.DurationMinutes <= 0 {
		return model.Invalid("duration_minutes", "must be positive")
	}
	if !req.Service.Active || req.Service.BusinessID != req.Business.ID {
		return model.Invalid("service_id", "not offered by this business")
	}
	if !req.Start.Valid() {
		return model.Invalid("start_time", "must be a time of day")
	}
	if req.Client.Name == "" {
		return model.Invalid("client_name", "required")
	}
	if req.Client.Phone == "" {
		return model.Invalid("client_phone", "required")
	}
	if req.Client.Email == "" {
		return model.Invalid("client_email", "required")
	}
	if _, err := mail.ParseAddress(req.Client.Email); err != nil {
		return model.Invalid("client_email", "not a valid address")
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrPastTime):
		return "past"
	case errors.Is(err, model.ErrMonthlyLimitReached):
		return "limit"
	case model.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
