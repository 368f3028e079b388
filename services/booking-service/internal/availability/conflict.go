package availability

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// UnassignedPolicy decides which bookings a booking without a staff member competes with.
type UnassignedPolicy int

const (
	// UnassignedConflictsWithAll: an unassigned booking and any other confirmed booking of
	// the business may not overlap, whichever of the two is unassigned. A candidate for
	// staff X is therefore also blocked by an existing unassigned booking, which keeps
	// the outcome independent of the order the two were booked in.
	UnassignedConflictsWithAll UnassignedPolicy = iota
	// UnassignedConflictsWithUnassigned: unassigned bookings only compete with each other.
	UnassignedConflictsWithUnassigned
)

func ParseUnassignedPolicy(s string) (UnassignedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return UnassignedConflictsWithAll, nil
	case "unassigned":
		return UnassignedConflictsWithUnassigned, nil
	default:
		return 0, fmt.Errorf("unknown unassigned staff policy %q (want all|unassigned)", s)
	}
}

func (p UnassignedPolicy) String() string {
	if p == UnassignedConflictsWithUnassigned {
		return "unassigned"
	}
	return "all"
}

// Overlaps is the half-open interval intersection test.
func Overlaps(a, b model.Interval) bool {
	return a.Overlaps(b)
}

type ConflictChecker struct {
	Unassigned UnassignedPolicy
}

// HasConflict reports whether candidate, requested for staffID ("" for any staff),
// overlaps a confirmed booking it competes with.
func (c ConflictChecker) HasConflict(candidate model.Interval, staffID string, existing []model.Booking) bool {
	for _, b := range existing {
		if !b.Confirmed() || !c.competes(staffID, b.StaffID) {
			continue
		}
		if Overlaps(candidate, b.Interval()) {
			return true
		}
	}
	return false
}

// Conflicts is the pairwise form of HasConflict.
func (c ConflictChecker) Conflicts(a, b model.Booking) bool {
	if !a.Confirmed() || !b.Confirmed() {
		return false
	}
	return c.competes(a.StaffID, b.StaffID) && Overlaps(a.Interval(), b.Interval())
}

func (c ConflictChecker) competes(staffA, staffB string) bool {
	switch {
	case staffA != "" && staffB != "":
		return staffA == staffB
	case c.Unassigned == UnassignedConflictsWithAll:
		return true
	default:
		return staffA == "" && staffB == ""
	}
}
