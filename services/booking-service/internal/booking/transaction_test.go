package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

var (
	now       = time.Date(2026, 1, 28, 9, 40, 0, 0, time.UTC)
	wednesday = model.Date{Year: 2026, Month: time.January, Day: 28}
	thursday  = model.Date{Year: 2026, Month: time.January, Day: 29}

	proBusiness = model.Business{ID: "b1", Name: "Studio", Timezone: "UTC", Plan: model.PlanPro}
	haircut     = model.Service{ID: "svc-cut", BusinessID: "b1", Name: "Haircut", DurationMinutes: 45, Active: true}
	client      = model.Client{Name: "Ada", Email: "ada@example.com", Phone: "+15550100"}
)

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	tx       *Transaction
}

func newFixture(policy availability.UnassignedPolicy) fixture {
	store := newMemStore()
	store.now = func() time.Time { return now }
	notifier := &recordingNotifier{}
	catalog := memCatalog{staff: map[string][]model.StaffMember{
		"svc-cut": {{ID: "X", Active: true}, {ID: "Y", Active: true}},
	}}
	engine := availability.NewEngine(
		availability.NewCalendar(true),
		availability.SlotGenerator{},
		availability.ConflictChecker{Unassigned: policy},
		nil,
		availability.WithClock(func() time.Time { return now }),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fixture{
		store:    store,
		notifier: notifier,
		tx:       NewTransaction(store, catalog, engine, notifier, logger),
	}
}

func request(staff string, date model.Date, h, m int) CreateRequest {
	return CreateRequest{
		Business: proBusiness,
		StaffID:  staff,
		Service:  haircut,
		Date:     date,
		Start:    model.NewClock(h, m),
		Client:   client,
	}
}

func TestCreate_Confirms(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	req := request("X", thursday, 10, 0)
	req.Notes = "  first visit "

	b, err := f.tx.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID == "" || b.Status != model.StatusConfirmed || b.DurationMinutes != 45 || b.Notes != "first visit" {
		t.Fatalf("unexpected booking: %+v", b)
	}
	if !b.ScheduledAt.Equal(time.Date(2026, 1, 29, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_at = %s", b.ScheduledAt)
	}
	if got := f.store.eventTypes(); len(got) != 1 || got[0] != outbox.TopicBookingConfirmed {
		t.Fatalf("events = %v", got)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", f.notifier.count())
	}
}

func TestCreate_PastTimeDoesNotTouchStorage(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	for _, start := range []model.Clock{model.NewClock(9, 0), model.NewClock(9, 40)} {
		req := request("X", wednesday, start.Hour(), start.Minute())
		if _, err := f.tx.Create(context.Background(), req); !errors.Is(err, model.ErrPastTime) {
			t.Fatalf("%s: got %v want ErrPastTime", start, err)
		}
	}
	if f.store.beginCount() != 0 || len(f.store.all()) != 0 {
		t.Fatalf("past bookings must not reach storage")
	}
}

func TestCreate_ValidationBeforeStorage(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	cases := []struct {
		name  string
		mut   func(*CreateRequest)
		field string
	}{
		{"zero duration", func(r *CreateRequest) { r.Service.DurationMinutes = 0 }, "duration_minutes"},
		{"inactive service", func(r *CreateRequest) { r.Service.Active = false }, "service_id"},
		{"foreign service", func(r *CreateRequest) { r.Service.BusinessID = "other" }, "service_id"},
		{"missing name", func(r *CreateRequest) { r.Client.Name = "  " }, "client_name"},
		{"missing phone", func(r *CreateRequest) { r.Client.Phone = "" }, "client_phone"},
		{"missing email", func(r *CreateRequest) { r.Client.Email = "" }, "client_email"},
		{"bad email", func(r *CreateRequest) { r.Client.Email = "not-an-email" }, "client_email"},
	}
	for _, tc := range cases {
		req := request("X", thursday, 10, 0)
		tc.mut(&req)
		_, err := f.tx.Create(context.Background(), req)
		var v *model.ValidationError
		if !errors.As(err, &v) || v.Field != tc.field {
			t.Fatalf("%s: got %v, want validation error on %s", tc.name, err, tc.field)
		}
	}
	if f.store.beginCount() != 0 {
		t.Fatalf("validation failures must not open a transaction")
	}
}

func TestCreate_RejectsIneligibleStaff(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	_, err := f.tx.Create(context.Background(), request("Z", thursday, 10, 0))
	var v *model.ValidationError
	if !errors.As(err, &v) || v.Field != "staff_id" {
		t.Fatalf("got %v, want staff_id validation error", err)
	}
}

func TestCreate_ConflictForSameStaffOnly(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	ctx := context.Background()
	if _, err := f.tx.Create(ctx, request("X", thursday, 10, 0)); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := f.tx.Create(ctx, request("X", thursday, 10, 30)); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("same staff overlap: got %v want ErrConflict", err)
	}
	if _, err := f.tx.Create(ctx, request("Y", thursday, 10, 30)); err != nil {
		t.Fatalf("other staff should be free: %v", err)
	}
	if _, err := f.tx.Create(ctx, request("X", thursday, 11, 0)); err != nil {
		t.Fatalf("adjacent slot should be free: %v", err)
	}
	if f.notifier.count() != 3 {
		t.Fatalf("notifications = %d, want 3", f.notifier.count())
	}
}

func TestCreate_OutsideHoursAndOffGrid(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	ctx := context.Background()
	if _, err := f.tx.Create(ctx, request("X", thursday, 11, 30)); !errors.Is(err, model.ErrOutsideWorkingHours) {
		t.Fatalf("lunch overlap: got %v", err)
	}
	if _, err := f.tx.Create(ctx, request("X", thursday, 10, 10)); !errors.Is(err, model.ErrOffGrid) {
		t.Fatalf("off grid: got %v", err)
	}
	saturday := model.Date{Year: 2026, Month: time.January, Day: 31}
	if _, err := f.tx.Create(ctx, request("X", saturday, 10, 0)); !errors.Is(err, model.ErrOutsideWorkingHours) {
		t.Fatalf("closed day: got %v", err)
	}
}

func TestCreate_StorageConflictIsReported(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	f.store.insertErr = model.ErrConflict
	if _, err := f.tx.Create(context.Background(), request("X", thursday, 10, 0)); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("failed bookings must not notify")
	}
}

func TestCreate_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	req := request("X", thursday, 10, 0)
	req.IdempotencyKey = "key-1"

	first, err := f.tx.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.tx.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay returned %s, want %s", second.ID, first.ID)
	}
	if len(f.store.all()) != 1 || f.notifier.count() != 1 {
		t.Fatalf("replay must not create or notify again")
	}
}

func TestCreate_MonthlyLimit(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	free := proBusiness
	free.Plan = model.PlanFree
	free.MonthlyLimit = 2

	ctx := context.Background()
	for _, h := range []int{10, 14} {
		req := request("X", thursday, h, 0)
		req.Business = free
		if _, err := f.tx.Create(ctx, req); err != nil {
			t.Fatalf("booking at %d:00: %v", h, err)
		}
	}

	req := request("Y", thursday, 15, 0)
	req.Business = free
	if _, err := f.tx.Create(ctx, req); !errors.Is(err, model.ErrMonthlyLimitReached) {
		t.Fatalf("got %v want ErrMonthlyLimitReached", err)
	}

	// Bookings created this month keep counting after they are cancelled.
	if _, err := f.tx.Cancel(ctx, "b1", f.store.all()[0].ID, "sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.tx.Create(ctx, req); !errors.Is(err, model.ErrMonthlyLimitReached) {
		t.Fatalf("after cancel: got %v want ErrMonthlyLimitReached", err)
	}

	// The quota follows creation time, so a slot in a later month is no way around it.
	later := request("Y", model.Date{Year: 2026, Month: time.March, Day: 3}, 10, 0)
	later.Business = free
	if _, err := f.tx.Create(ctx, later); !errors.Is(err, model.ErrMonthlyLimitReached) {
		t.Fatalf("later month: got %v want ErrMonthlyLimitReached", err)
	}
}

func TestCreate_MonthlyLimitResetsWithCreationMonth(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	free := proBusiness
	free.Plan = model.PlanFree
	free.MonthlyLimit = 1

	ctx := context.Background()
	req := request("X", thursday, 10, 0)
	req.Business = free
	if _, err := f.tx.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A booking created last month does not count against this one.
	f.store.stateMu.Lock()
	for id, b := range f.store.bookings {
		b.CreatedAt = now.AddDate(0, -1, 0)
		f.store.bookings[id] = b
	}
	f.store.stateMu.Unlock()

	req.Start = model.NewClock(14, 0)
	if _, err := f.tx.Create(ctx, req); err != nil {
		t.Fatalf("new month: %v", err)
	}
}

func TestCreate_MonthLockPrecedesDayLock(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	free := proBusiness
	free.Plan = model.PlanFree
	free.MonthlyLimit = 10

	ctx := context.Background()
	// Two days of the same month share the month lock, which is always taken first.
	for _, d := range []model.Date{thursday, {Year: 2026, Month: time.January, Day: 30}} {
		req := request("X", d, 10, 0)
		req.Business = free
		if _, err := f.tx.Create(ctx, req); err != nil {
			t.Fatalf("create %s: %v", d, err)
		}
	}
	want := []string{
		"month:b1:2026-01", "day:b1:2026-01-29",
		"month:b1:2026-01", "day:b1:2026-01-30",
	}
	got := f.store.lockLog()
	if len(got) != len(want) {
		t.Fatalf("locks = %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("locks = %v want %v", got, want)
		}
	}

	// Plans without a quota never take the month lock.
	pro := newFixture(availability.UnassignedConflictsWithAll)
	if _, err := pro.tx.Create(ctx, request("X", thursday, 10, 0)); err != nil {
		t.Fatalf("pro create: %v", err)
	}
	if got := pro.store.lockLog(); len(got) != 1 || got[0] != "day:b1:2026-01-29" {
		t.Fatalf("pro locks = %v", got)
	}
}

func TestCancelAndComplete(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	ctx := context.Background()
	b, err := f.tx.Create(ctx, request("X", thursday, 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := f.tx.Cancel(ctx, "b1", b.ID, " client asked ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil || cancelled.CancelReason != "client asked" {
		t.Fatalf("unexpected cancelled booking: %+v", cancelled)
	}

	again, err := f.tx.Cancel(ctx, "b1", b.ID, "other reason")
	if err != nil || again.CancelReason != "client asked" {
		t.Fatalf("repeated cancel should be a no-op, got %+v, %v", again, err)
	}
	if _, err := f.tx.Complete(ctx, "b1", b.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("complete after cancel: got %v", err)
	}
	if _, err := f.tx.Cancel(ctx, "other-business", b.ID, ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("foreign business: got %v", err)
	}

	// The slot is bookable again once cancelled.
	if _, err := f.tx.Create(ctx, request("X", thursday, 10, 0)); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	want := []string{outbox.TopicBookingConfirmed, outbox.TopicBookingCancelled, outbox.TopicBookingConfirmed}
	got := f.store.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(availability.UnassignedConflictsWithAll)
	ctx := context.Background()
	b, err := f.tx.Create(ctx, request("X", thursday, 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := f.tx.CompleteElapsed(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("nothing has ended yet: n=%d err=%v", n, err)
	}

	later := availability.NewEngine(availability.NewCalendar(true), availability.SlotGenerator{}, availability.ConflictChecker{}, nil,
		availability.WithClock(func() time.Time { return b.EndsAt() }))
	f.tx.engine = later
	n, err = f.tx.CompleteElapsed(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one completion: n=%d err=%v", n, err)
	}
	if got := f.store.all()[0]; got.Status != model.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected booking after sweep: %+v", got)
	}
}

// Concurrent random bookings must never leave two competing confirmed bookings overlapping.
func TestCreate_ConcurrentBookingsNeverOverlap(t *testing.T) {
	for _, policy := range []availability.UnassignedPolicy{availability.UnassignedConflictsWithAll, availability.UnassignedConflictsWithUnassigned} {
		t.Run(policy.String(), func(t *testing.T) {
			f := newFixture(policy)
			rng := rand.New(rand.NewSource(42))
			staff := []string{"X", "Y", ""}
			durations := []int{30, 45, 60, 90}

			reqs := make([]CreateRequest, 200)
			for i := range reqs {
				slot := rng.Intn(18) // 09:00 .. 17:30
				req := request(staff[rng.Intn(len(staff))], thursday, 9+slot/2, (slot%2)*30)
				req.Service.DurationMinutes = durations[rng.Intn(len(durations))]
				reqs[i] = req
			}

			var wg sync.WaitGroup
			for _, req := range reqs {
				wg.Add(1)
				go func(req CreateRequest) {
					defer wg.Done()
					_, _ = f.tx.Create(context.Background(), req)
				}(req)
			}
			wg.Wait()

			checker := availability.ConflictChecker{Unassigned: policy}
			all := f.store.all()
			if len(all) == 0 {
				t.Fatalf("expected some bookings to succeed")
			}
			for i := range all {
				for j := i + 1; j < len(all); j++ {
					if checker.Conflicts(all[i], all[j]) {
						t.Fatalf("overlapping confirmed bookings: %+v and %+v", all[i], all[j])
					}
				}
			}
		})
	}
}
