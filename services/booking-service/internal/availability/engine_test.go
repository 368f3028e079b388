package availability

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type fakeSource struct {
	bookings []model.Booking
	calls    int
	err      error
}

func (f *fakeSource) ListConfirmed(_ context.Context, _ string, from, to time.Time) ([]model.Booking, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Booking
	window := model.Interval{Start: from, End: to}
	for _, b := range f.bookings {
		if b.Confirmed() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

var (
	testBusiness = model.Business{ID: "b1", Timezone: "UTC"}
	hourService  = model.Service{ID: "s1", BusinessID: "b1", DurationMinutes: 60, Active: true}
	wednesday    = model.Date{Year: 2026, Month: time.January, Day: 28}
)

func newTestEngine(src BookingSource, now time.Time) *Engine {
	return NewEngine(NewCalendar(true), SlotGenerator{}, ConflictChecker{}, src, WithClock(func() time.Time { return now }))
}

func TestAvailableSlots_ExcludesBookedAndLunch(t *testing.T) {
	src := &fakeSource{bookings: []model.Booking{confirmed("X", day(10, 0), 45)}}
	e := newTestEngine(src, day(0, 0))

	slots, err := e.AvailableSlots(context.Background(), testBusiness, "X", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, blocked := range []time.Time{day(9, 30), day(10, 0), day(10, 30), day(11, 30), day(12, 0)} {
		if Offered(slots, blocked) {
			t.Fatalf("%s should not be offered", blocked.Format("15:04"))
		}
	}
	for _, free := range []time.Time{day(9, 0), day(11, 0), day(13, 0), day(17, 0)} {
		if !Offered(slots, free) {
			t.Fatalf("%s should be offered", free.Format("15:04"))
		}
	}

	other, err := e.AvailableSlots(context.Background(), testBusiness, "Y", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Offered(other, day(10, 0)) {
		t.Fatalf("staff Y is free at 10:00")
	}
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	src := &fakeSource{bookings: []model.Booking{confirmed("X", day(14, 0), 30)}}
	e := newTestEngine(src, day(0, 0))

	first, err := e.AvailableSlots(context.Background(), testBusiness, "X", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.AvailableSlots(context.Background(), testBusiness, "X", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.EqualFunc(first, second, time.Time.Equal) {
		t.Fatalf("outputs differ")
	}
	if src.calls != 2 {
		t.Fatalf("expected a fresh read per call, got %d", src.calls)
	}
}

func TestAvailableSlots_ClosedDayIsEmptyNotError(t *testing.T) {
	src := &fakeSource{}
	e := newTestEngine(src, day(0, 0))
	saturday := model.Date{Year: 2026, Month: time.January, Day: 31}

	slots, err := e.AvailableSlots(context.Background(), testBusiness, "", hourService, saturday)
	if err != nil || slots == nil || len(slots) != 0 {
		t.Fatalf("got %v, %v; want empty list", slots, err)
	}
	if src.calls != 0 {
		t.Fatalf("closed day should not read bookings")
	}
}

func TestAvailableSlots_TodayDropsElapsed(t *testing.T) {
	e := newTestEngine(&fakeSource{}, day(13, 0))
	slots, err := e.AvailableSlots(context.Background(), testBusiness, "", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 || !slots[0].Equal(day(13, 30)) {
		t.Fatalf("first slot = %v, want 13:30", slots)
	}
}

func TestAvailableSlots_Errors(t *testing.T) {
	e := newTestEngine(&fakeSource{err: errors.New("db down")}, day(0, 0))
	if _, err := e.AvailableSlots(context.Background(), testBusiness, "", hourService, wednesday); err == nil {
		t.Fatalf("expected storage error")
	}
	bad := hourService
	bad.DurationMinutes = 0
	if _, err := e.AvailableSlots(context.Background(), testBusiness, "", bad, wednesday); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckSlot(t *testing.T) {
	existing := []model.Booking{confirmed("X", day(10, 0), 45)}
	e := newTestEngine(&fakeSource{}, day(9, 15))

	cases := []struct {
		name  string
		staff string
		start time.Time
		want  error
	}{
		{"free", "X", day(11, 0), nil},
		{"other staff", "Y", day(10, 30), nil},
		{"conflict", "X", day(10, 30), model.ErrConflict},
		{"past", "X", day(9, 0), model.ErrPastTime},
		{"now", "X", day(9, 15), model.ErrPastTime},
		{"into lunch", "X", day(11, 30), model.ErrOutsideWorkingHours},
		{"after close", "X", day(17, 30), model.ErrOutsideWorkingHours},
		{"off grid", "X", day(13, 15), model.ErrOffGrid},
		{"weekend", "X", time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC), model.ErrOutsideWorkingHours},
	}
	for _, tc := range cases {
		err := e.CheckSlot(testBusiness, tc.staff, hourService, tc.start, existing)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestCheckSlotAgreesWithAvailableSlots(t *testing.T) {
	src := &fakeSource{bookings: []model.Booking{confirmed("X", day(10, 0), 45), confirmed("X", day(15, 30), 90)}}
	e := newTestEngine(src, day(0, 0))
	slots, err := e.AvailableSlots(context.Background(), testBusiness, "X", hourService, wednesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for t0 := day(9, 0); t0.Before(day(18, 0)); t0 = t0.Add(30 * time.Minute) {
		ok := e.CheckSlot(testBusiness, "X", hourService, t0, src.bookings) == nil
		if ok != Offered(slots, t0) {
			t.Fatalf("%s: CheckSlot=%v listed=%v", t0.Format("15:04"), ok, Offered(slots, t0))
		}
	}
}
