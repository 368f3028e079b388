package availability

import (
	"iter"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const DefaultStep = 30 * time.Minute

// SlotGenerator steps candidate start times through an open interval. The step is
// independent of the service duration.
type SlotGenerator struct {
	Step time.Duration
}

func (g SlotGenerator) step() time.Duration {
	if g.Step <= 0 {
		return DefaultStep
	}
	return g.Step
}

// Generate yields, in ascending order, every start from open.Start to open.End-duration
// that passes Valid. The sequence can be ranged over any number of times.
func (g SlotGenerator) Generate(open model.Interval, excluded *model.Interval, duration time.Duration, now time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 {
			return
		}
		last := open.End.Add(-duration)
		for t := open.Start; !t.After(last); t = t.Add(g.step()) {
			if !g.Valid(open, excluded, duration, now, t) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Valid applies the generator's rules to a single start: the slot fits inside open,
// does not touch excluded at all, and starts strictly after now.
func (g SlotGenerator) Valid(open model.Interval, excluded *model.Interval, duration time.Duration, now, start time.Time) bool {
	if duration <= 0 {
		return false
	}
	slot := model.Interval{Start: start, End: start.Add(duration)}
	if !open.Contains(slot) {
		return false
	}
	if excluded != nil && slot.Overlaps(*excluded) {
		return false
	}
	return start.After(now)
}

// OnGrid reports whether start is one of the step positions of open.
func (g SlotGenerator) OnGrid(open model.Interval, start time.Time) bool {
	offset := start.Sub(open.Start)
	return offset >= 0 && offset%g.step() == 0
}
