package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type BookingLister interface {
	ListByBusiness(ctx context.Context, businessID string, f storage.ListFilter) ([]model.Booking, error)
}

type StatusChanger interface {
	Cancel(ctx context.Context, businessID, bookingID, reason string) (model.Booking, error)
	Complete(ctx context.Context, businessID, bookingID string) (model.Booking, error)
}

// AppointmentHandler serves the owner's booking list and status changes.
type AppointmentHandler struct {
	businesses BusinessReader
	lister     BookingLister
	changer    StatusChanger
	logger     *slog.Logger
}

func NewAppointmentHandler(businesses BusinessReader, lister BookingLister, changer StatusChanger, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{businesses: businesses, lister: lister, changer: changer, logger: logger}
}

type statusChangeRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := ownerBusinessID(r)
	if id == "" {
		http.Error(w, BusinessIDHeader+" header required", http.StatusBadRequest)
		return
	}

	b, err := h.businesses.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to load business")
		return
	}
	loc := b.Location()

	filter := storage.ListFilter{Limit: 50}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, err := model.ParseDate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		day := date.Window(loc)
		filter.From, filter.To = day.Start, day.End
	}

	bookings, err := h.lister.ListByBusiness(r.Context(), b.ID, filter)
	if err != nil {
		writeError(w, h.logger, err, "failed to list appointments")
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, bk := range bookings {
		items = append(items, toBookingItem(bk, loc))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, businessID string, req statusChangeRequest) (model.Booking, error) {
		return h.changer.Cancel(ctx, businessID, req.AppointmentID, req.Reason)
	})
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, businessID string, req statusChangeRequest) (model.Booking, error) {
		return h.changer.Complete(ctx, businessID, req.AppointmentID)
	})
}

func (h *AppointmentHandler) changeStatus(w http.ResponseWriter, r *http.Request, change func(context.Context, string, statusChangeRequest) (model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := ownerBusinessID(r)
	if id == "" {
		http.Error(w, BusinessIDHeader+" header required", http.StatusBadRequest)
		return
	}
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	b, err := h.businesses.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to load business")
		return
	}
	updated, err := change(r.Context(), b.ID, req)
	if err != nil {
		writeError(w, h.logger, err, "failed to update appointment")
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(updated, b.Location()))
}
