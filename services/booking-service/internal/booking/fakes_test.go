package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// memStore serializes transactions with one mutex held from Begin to Commit/Rollback,
// which is stricter than the per-day advisory lock of the Postgres store.
type memStore struct {
	mu sync.Mutex

	stateMu  sync.Mutex
	bookings map[string]model.Booking
	keys     map[string]string
	events   []outbox.Event
	nextID   int
	begins   int
	locks    []string
	now      func() time.Time

	insertErr error
}

func newMemStore() *memStore {
	return &memStore{bookings: map[string]model.Booking{}, keys: map[string]string{}, now: time.Now}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	s.stateMu.Lock()
	s.begins++
	s.stateMu.Unlock()
	return &memTx{store: s, bookings: map[string]model.Booking{}, keys: map[string]string{}}, nil
}

func (s *memStore) beginCount() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.begins
}

func (s *memStore) all() []model.Booking {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) lockLog() []string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return append([]string(nil), s.locks...)
}

func (s *memStore) recordLock(key string) {
	s.stateMu.Lock()
	s.locks = append(s.locks, key)
	s.stateMu.Unlock()
}

func (s *memStore) eventTypes() []string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type memTx struct {
	store    *memStore
	bookings map[string]model.Booking
	keys     map[string]string
	events   []outbox.Event
	done     bool
}

func (t *memTx) get(id string) (model.Booking, bool) {
	if b, ok := t.bookings[id]; ok {
		return b, true
	}
	b, ok := t.store.bookings[id]
	return b, ok
}

func (t *memTx) view() []model.Booking {
	out := make([]model.Booking, 0, len(t.store.bookings)+len(t.bookings))
	for id, b := range t.store.bookings {
		if _, staged := t.bookings[id]; !staged {
			out = append(out, b)
		}
	}
	for _, b := range t.bookings {
		out = append(out, b)
	}
	return out
}

func (t *memTx) ClaimIdempotencyKey(_ context.Context, businessID, key string) (string, error) {
	k := businessID + "/" + key
	if id, ok := t.store.keys[k]; ok {
		return id, nil
	}
	t.keys[k] = ""
	return "", nil
}

func (t *memTx) FinalizeIdempotencyKey(_ context.Context, businessID, key, bookingID string) error {
	t.keys[businessID+"/"+key] = bookingID
	return nil
}

func (t *memTx) LockBusinessDay(_ context.Context, businessID string, date model.Date) error {
	t.store.recordLock("day:" + businessID + ":" + date.String())
	return nil
}

func (t *memTx) LockBusinessMonth(_ context.Context, businessID string, month model.Date) error {
	t.store.recordLock(fmt.Sprintf("month:%s:%04d-%02d", businessID, month.Year, int(month.Month)))
	return nil
}

func (t *memTx) CountCreatedBookings(_ context.Context, businessID string, from, to time.Time) (int, error) {
	n := 0
	for _, b := range t.view() {
		if b.BusinessID == businessID && !b.CreatedAt.Before(from) && b.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListConfirmed(_ context.Context, businessID string, from, to time.Time) ([]model.Booking, error) {
	window := model.Interval{Start: from, End: to}
	var out []model.Booking
	for _, b := range t.view() {
		if b.BusinessID == businessID && b.Confirmed() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) GetBooking(_ context.Context, businessID, bookingID string) (model.Booking, error) {
	b, ok := t.get(bookingID)
	if !ok || b.BusinessID != businessID {
		return model.Booking{}, model.ErrNotFound
	}
	return b, nil
}

func (t *memTx) GetBookingForUpdate(ctx context.Context, businessID, bookingID string) (model.Booking, error) {
	return t.GetBooking(ctx, businessID, bookingID)
}

func (t *memTx) ListElapsedForUpdate(_ context.Context, endedBy time.Time, limit int) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.view() {
		if b.Confirmed() && !b.EndsAt().After(endedBy) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.store.stateMu.Lock()
	t.store.nextID++
	b.ID = fmt.Sprintf("bk-%04d", t.store.nextID)
	t.store.stateMu.Unlock()
	b.CreatedAt = t.store.now().UTC()
	t.bookings[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, b model.Booking) error {
	if _, ok := t.get(b.ID); !ok {
		return model.ErrNotFound
	}
	t.bookings[b.ID] = b
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("tx already closed")
	}
	t.store.stateMu.Lock()
	for id, b := range t.bookings {
		t.store.bookings[id] = b
	}
	for k, v := range t.keys {
		if v != "" {
			t.store.keys[k] = v
		}
	}
	t.store.events = append(t.store.events, t.events...)
	t.store.stateMu.Unlock()
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

type memCatalog struct {
	staff map[string][]model.StaffMember
}

func (c memCatalog) EligibleStaff(_ context.Context, _ string, serviceID string) ([]model.StaffMember, error) {
	return c.staff[serviceID], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []model.Booking
}

func (n *recordingNotifier) Notify(_ context.Context, _ model.Business, _ model.Service, b model.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
