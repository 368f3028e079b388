package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const (
	BusinessIDHeader     = "X-Business-Id"
	IdempotencyKeyHeader = "Idempotency-Key"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps domain errors to status codes. Anything unrecognised is logged and
// reported as a 500 with fallback as the message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, model.ErrOutsideWorkingHours), errors.Is(err, model.ErrOffGrid), errors.Is(err, model.ErrPastTime):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrMonthlyLimitReached):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	default:
		logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

// ownerBusinessID reads the owner's business from the header set by the gateway after
// authentication. Owner routes never take it from the query string.
func ownerBusinessID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(BusinessIDHeader))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type bookingItem struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ScheduledAt   string `json:"scheduled_at"`
	Duration      int    `json:"duration_minutes"`
	Status        string `json:"status"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toBookingItem(b model.Booking, loc *time.Location) bookingItem {
	start := b.ScheduledAt.In(loc)
	item := bookingItem{
		AppointmentID: b.ID,
		BusinessID:    b.BusinessID,
		StaffID:       b.StaffID,
		ServiceID:     b.ServiceID,
		Date:          model.DateOf(start).String(),
		StartTime:     start.Format("15:04"),
		EndTime:       b.EndsAt().In(loc).Format("15:04"),
		ScheduledAt:   start.Format(time.RFC3339),
		Duration:      b.DurationMinutes,
		Status:        string(b.Status),
		ClientName:    b.Client.Name,
		ClientEmail:   b.Client.Email,
		ClientPhone:   b.Client.Phone,
		Notes:         b.Notes,
		CancelledAt:   formatTime(b.CancelledAt),
		CancelReason:  b.CancelReason,
		CompletedAt:   formatTime(b.CompletedAt),
	}
	if !b.CreatedAt.IsZero() {
		item.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}
