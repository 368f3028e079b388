package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type ScheduleStore interface {
	ListWeeklySchedule(ctx context.Context, businessID string) ([]model.WeeklyScheduleEntry, error)
	ReplaceWeeklySchedule(ctx context.Context, businessID string, entries []model.WeeklyScheduleEntry) error
}

type ScheduleHandler struct {
	businesses BusinessReader
	store      ScheduleStore
	logger     *slog.Logger
}

func NewScheduleHandler(businesses BusinessReader, store ScheduleStore, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{businesses: businesses, store: store, logger: logger}
}

// scheduleEntry uses Go weekday numbering, 0 is Sunday.
type scheduleEntry struct {
	Weekday         int    `json:"weekday"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	LunchBreakStart string `json:"lunch_break_start,omitempty"`
	LunchBreakEnd   string `json:"lunch_break_end,omitempty"`
}

func (e scheduleEntry) toModel() (model.WeeklyScheduleEntry, error) {
	start, err := model.ParseClock(e.StartTime)
	if err != nil {
		return model.WeeklyScheduleEntry{}, model.Invalid("start_time", err.Error())
	}
	end, err := model.ParseClock(e.EndTime)
	if err != nil {
		return model.WeeklyScheduleEntry{}, model.Invalid("end_time", err.Error())
	}
	out := model.WeeklyScheduleEntry{Weekday: time.Weekday(e.Weekday), Start: start, End: end}
	if e.LunchBreakStart != "" {
		ls, err := model.ParseClock(e.LunchBreakStart)
		if err != nil {
			return model.WeeklyScheduleEntry{}, model.Invalid("lunch_break_start", err.Error())
		}
		out.LunchStart = &ls
	}
	if e.LunchBreakEnd != "" {
		le, err := model.ParseClock(e.LunchBreakEnd)
		if err != nil {
			return model.WeeklyScheduleEntry{}, model.Invalid("lunch_break_end", err.Error())
		}
		out.LunchEnd = &le
	}
	return out, nil
}

func fromModel(e model.WeeklyScheduleEntry) scheduleEntry {
	out := scheduleEntry{Weekday: int(e.Weekday), StartTime: e.Start.String(), EndTime: e.End.String()}
	if e.HasLunch() {
		out.LunchBreakStart = e.LunchStart.String()
		out.LunchBreakEnd = e.LunchEnd.String()
	}
	return out
}

// Schedule handles GET (read) and PUT (replace all entries) of the weekly schedule.
func (h *ScheduleHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.replace(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) get(w http.ResponseWriter, r *http.Request) {
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
	entries, err := h.store.ListWeeklySchedule(r.Context(), b.ID)
	if err != nil {
		writeError(w, h.logger, err, "failed to load schedule")
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(entries))
}

func (h *ScheduleHandler) replace(w http.ResponseWriter, r *http.Request) {
	id := ownerBusinessID(r)
	if id == "" {
		http.Error(w, BusinessIDHeader+" header required", http.StatusBadRequest)
		return
	}
	var req []scheduleEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	entries := make([]model.WeeklyScheduleEntry, 0, len(req))
	for _, e := range req {
		m, err := e.toModel()
		if err != nil {
			writeError(w, h.logger, err, "invalid schedule")
			return
		}
		entries = append(entries, m)
	}
	if err := model.ValidateSchedule(entries); err != nil {
		writeError(w, h.logger, err, "invalid schedule")
		return
	}

	if err := h.store.ReplaceWeeklySchedule(r.Context(), id, entries); err != nil {
		writeError(w, h.logger, err, "failed to save schedule")
		return
	}
	h.logger.Info("weekly schedule replaced", "business_id", id, "entries", len(entries))
	model.SortSchedule(entries)
	writeJSON(w, http.StatusOK, toScheduleResponse(entries))
}

func toScheduleResponse(entries []model.WeeklyScheduleEntry) []scheduleEntry {
	out := make([]scheduleEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromModel(e))
	}
	return out
}
