package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type BusinessReader interface {
	Get(ctx context.Context, businessID string) (model.Business, error)
	GetBySlug(ctx context.Context, slug string) (model.Business, error)
}

type CatalogReader interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	ListActiveServices(ctx context.Context, businessID string) ([]model.Service, error)
	EligibleStaff(ctx context.Context, businessID, serviceID string) ([]model.StaffMember, error)
}

type SlotFinder interface {
	AvailableSlots(ctx context.Context, b model.Business, staffID string, svc model.Service, date model.Date) ([]time.Time, error)
}

type BookingCreator interface {
	Create(ctx context.Context, req booking.CreateRequest) (model.Booking, error)
}

// PublicHandler serves the client booking wizard: business, staff, slots, book.
// Every step is a stateless query.
type PublicHandler struct {
	businesses BusinessReader
	catalog    CatalogReader
	slots      SlotFinder
	bookings   BookingCreator
	logger     *slog.Logger
}

func NewPublicHandler(businesses BusinessReader, catalog CatalogReader, slots SlotFinder, bookings BookingCreator, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		businesses: businesses,
		catalog:    catalog,
		slots:      slots,
		bookings:   bookings,
		logger:     logger,
	}
}

type serviceItem struct {
	ServiceID string   `json:"service_id"`
	Name      string   `json:"name"`
	Duration  int      `json:"duration_minutes"`
	Price     *float64 `json:"price,omitempty"`
}

type businessResponse struct {
	BusinessID string        `json:"business_id"`
	Name       string        `json:"name"`
	Slug       string        `json:"slug"`
	Timezone   string        `json:"timezone"`
	Services   []serviceItem `json:"services"`
}

type staffItem struct {
	StaffID string `json:"staff_id"`
	Name    string `json:"name"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StartsAt  string `json:"starts_at"`
}

type bookRequest struct {
	BusinessID  string `json:"business_id"`
	ServiceID   string `json:"service_id"`
	StaffID     string `json:"staff_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

// Business resolves the shareable link slug.
func (h *PublicHandler) Business(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		http.Error(w, "slug required", http.StatusBadRequest)
		return
	}

	b, err := h.businesses.GetBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, h.logger, err, "failed to load business")
		return
	}
	services, err := h.catalog.ListActiveServices(r.Context(), b.ID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load services")
		return
	}

	resp := businessResponse{
		BusinessID: b.ID,
		Name:       b.Name,
		Slug:       b.Slug,
		Timezone:   b.Location().String(),
		Services:   make([]serviceItem, 0, len(services)),
	}
	for _, s := range services {
		resp.Services = append(resp.Services, serviceItem{ServiceID: s.ID, Name: s.Name, Duration: s.DurationMinutes, Price: s.Price})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PublicHandler) Staff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if businessID == "" || serviceID == "" {
		http.Error(w, "business_id and service_id are required", http.StatusBadRequest)
		return
	}

	staff, err := h.catalog.EligibleStaff(r.Context(), businessID, serviceID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load staff")
		return
	}
	items := make([]staffItem, 0, len(staff))
	for _, s := range staff {
		items = append(items, staffItem{StaffID: s.ID, Name: s.Name})
	}
	writeJSON(w, http.StatusOK, items)
}

// Slots lists bookable start times for a service on a date. A closed day returns [].
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if businessID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "business_id, service_id, and date are required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	b, svc, err := h.loadOffering(ctx, businessID, serviceID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load service")
		return
	}
	if staffID != "" {
		if err := h.checkStaff(ctx, businessID, serviceID, staffID); err != nil {
			writeError(w, h.logger, err, "failed to load staff")
			return
		}
	}

	started := time.Now()
	starts, err := h.slots.AvailableSlots(ctx, b, staffID, svc, date)
	if err != nil {
		metrics.ObserveSlotQuery("error", time.Since(started))
		writeError(w, h.logger, err, "failed to compute slots")
		return
	}
	result := "ok"
	if len(starts) == 0 {
		result = "empty"
	}
	metrics.ObserveSlotQuery(result, time.Since(started))

	loc := b.Location()
	items := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		local := s.In(loc)
		items = append(items, slotItem{
			StartTime: local.Format("15:04"),
			EndTime:   local.Add(svc.Duration()).Format("15:04"),
			StartsAt:  local.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Book confirms a slot. Sending the same Idempotency-Key again returns the original booking.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.ServiceID == "" || req.Date == "" || req.StartTime == "" {
		http.Error(w, "business_id, service_id, date, and start_time are required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := model.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	b, svc, err := h.loadOffering(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load service")
		return
	}

	created, err := h.bookings.Create(ctx, booking.CreateRequest{
		Business: b,
		StaffID:  req.StaffID,
		Service:  svc,
		Date:     date,
		Start:    start,
		Client: model.Client{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to create booking")
		return
	}
	writeJSON(w, http.StatusCreated, toBookingItem(created, b.Location()))
}

// loadOffering returns the business and one of its active services.
func (h *PublicHandler) loadOffering(ctx context.Context, businessID, serviceID string) (model.Business, model.Service, error) {
	b, err := h.businesses.Get(ctx, businessID)
	if err != nil {
		return model.Business{}, model.Service{}, err
	}
	svc, err := h.catalog.GetService(ctx, businessID, serviceID)
	if err != nil {
		return model.Business{}, model.Service{}, err
	}
	if !svc.Active {
		return model.Business{}, model.Service{}, model.ErrNotFound
	}
	return b, svc, nil
}

func (h *PublicHandler) checkStaff(ctx context.Context, businessID, serviceID, staffID string) error {
	staff, err := h.catalog.EligibleStaff(ctx, businessID, serviceID)
	if err != nil {
		return err
	}
	for _, s := range staff {
		if s.ID == staffID {
			return nil
		}
	}
	return model.Invalid("staff_id", "not available for this service")
}
