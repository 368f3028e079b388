package model

import (
	"fmt"
	"sort"
	"time"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanTrial Plan = "trial"
	PlanPro   Plan = "pro"
)

// DefaultMonthlyLimit is the free-plan booking allowance when billing sends none.
const DefaultMonthlyLimit = 60

func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanFree, PlanTrial, PlanPro:
		return p, nil
	default:
		return "", fmt.Errorf("unknown plan %q", s)
	}
}

// WeeklyScheduleEntry is a business's opening hours for one weekday. Lunch bounds are
// either both set or both nil.
type WeeklyScheduleEntry struct {
	Weekday    time.Weekday
	Start      Clock
	End        Clock
	LunchStart *Clock
	LunchEnd   *Clock
}

func (e WeeklyScheduleEntry) HasLunch() bool {
	return e.LunchStart != nil && e.LunchEnd != nil
}

func (e WeeklyScheduleEntry) Validate() error {
	if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
		return Invalid("weekday", "must be 0 (Sunday) through 6 (Saturday)")
	}
	if !e.Start.Valid() || !e.End.Valid() {
		return Invalid("start_time", "must be a time of day")
	}
	if e.Start >= e.End {
		return Invalid("end_time", "must be after start_time")
	}
	if (e.LunchStart == nil) != (e.LunchEnd == nil) {
		return Invalid("lunch_break", "start and end must be set together")
	}
	if e.HasLunch() {
		ls, le := *e.LunchStart, *e.LunchEnd
		if ls >= le {
			return Invalid("lunch_break_end", "must be after lunch_break_start")
		}
		if ls < e.Start || le > e.End {
			return Invalid("lunch_break", "must fall within working hours")
		}
	}
	return nil
}

// ValidateSchedule checks every entry and rejects duplicate weekdays.
func ValidateSchedule(entries []WeeklyScheduleEntry) error {
	seen := make(map[time.Weekday]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Weekday] {
			return Invalid("weekday", fmt.Sprintf("%s listed more than once", e.Weekday))
		}
		seen[e.Weekday] = true
	}
	return nil
}

func SortSchedule(entries []WeeklyScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Weekday < entries[j].Weekday })
}

type Business struct {
	ID           string
	Name         string
	Slug         string
	Timezone     string
	Plan         Plan
	MonthlyLimit int
	TrialEndsAt  *time.Time
	WebhookURL   string
	Schedule     []WeeklyScheduleEntry
}

// Location returns the business timezone, UTC when unset or unknown.
func (b Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b Business) ScheduleFor(day time.Weekday) (WeeklyScheduleEntry, bool) {
	for _, e := range b.Schedule {
		if e.Weekday == day {
			return e, true
		}
	}
	return WeeklyScheduleEntry{}, false
}

// NotificationsEnabled is true for pro businesses and for trials that have not ended.
func (b Business) NotificationsEnabled(now time.Time) bool {
	switch b.Plan {
	case PlanPro:
		return true
	case PlanTrial:
		return b.TrialEndsAt == nil || now.Before(*b.TrialEndsAt)
	default:
		return false
	}
}

func (b Business) MonthlyLimitApplies() bool {
	return b.Plan == PlanFree && b.MonthlyLimit > 0
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	Price           *float64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type StaffMember struct {
	ID         string
	BusinessID string
	Name       string
	Active     bool
}

// EligibleStaff filters staff for a service. assigned holds the ids of staff assigned to
// the service; when it is empty every active member is eligible.
func EligibleStaff(staff []StaffMember, assigned []string) []StaffMember {
	var set map[string]bool
	if len(assigned) > 0 {
		set = make(map[string]bool, len(assigned))
		for _, id := range assigned {
			set[id] = true
		}
	}
	out := make([]StaffMember, 0, len(staff))
	for _, s := range staff {
		if !s.Active {
			continue
		}
		if set != nil && !set[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out
}
