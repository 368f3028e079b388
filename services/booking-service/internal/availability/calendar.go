package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// OpenInterval is a resolved working day. Excluded (the lunch break) is kept apart from
// Primary so slot generation can skip it explicitly.
type OpenInterval struct {
	Primary  model.Interval
	Excluded *model.Interval
}

// DefaultHours is applied to businesses that have not saved any schedule.
var DefaultHours = model.WeeklyScheduleEntry{
	Start:      model.NewClock(9, 0),
	End:        model.NewClock(18, 0),
	LunchStart: clockPtr(model.NewClock(12, 0)),
	LunchEnd:   clockPtr(model.NewClock(13, 0)),
}

var DefaultWeekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

type Calendar struct {
	DefaultsEnabled bool
	DefaultWeekdays []time.Weekday
}

func NewCalendar(defaultsEnabled bool) Calendar {
	return Calendar{DefaultsEnabled: defaultsEnabled, DefaultWeekdays: DefaultWeekdays}
}

// Resolve returns the open interval of b on date in the business timezone. A business
// with a saved schedule is closed on weekdays it has no entry for.
func (c Calendar) Resolve(b model.Business, date model.Date) (OpenInterval, bool) {
	entry, ok := c.entryFor(b, date.Weekday())
	if !ok {
		return OpenInterval{}, false
	}
	loc := b.Location()
	open := OpenInterval{Primary: model.Interval{Start: date.At(entry.Start, loc), End: date.At(entry.End, loc)}}
	if !open.Primary.End.After(open.Primary.Start) {
		return OpenInterval{}, false
	}
	if entry.HasLunch() {
		open.Excluded = &model.Interval{Start: date.At(*entry.LunchStart, loc), End: date.At(*entry.LunchEnd, loc)}
	}
	return open, true
}

func (c Calendar) entryFor(b model.Business, day time.Weekday) (model.WeeklyScheduleEntry, bool) {
	if len(b.Schedule) > 0 {
		return b.ScheduleFor(day)
	}
	if !c.DefaultsEnabled {
		return model.WeeklyScheduleEntry{}, false
	}
	for _, d := range c.DefaultWeekdays {
		if d == day {
			e := DefaultHours
			e.Weekday = day
			return e, true
		}
	}
	return model.WeeklyScheduleEntry{}, false
}

func clockPtr(c model.Clock) *model.Clock { return &c }
