package model

import (
	"errors"
	"fmt"
)

var (
	ErrPastTime            = errors.New("requested time has already passed")
	ErrConflict            = errors.New("time slot is no longer available")
	ErrMonthlyLimitReached = errors.New("monthly booking limit reached (upgrade required)")
	ErrInvalidTransition   = errors.New("booking status does not allow this change")
	ErrNotFound            = errors.New("not found")
)

// ValidationError reports malformed input. It is returned before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Slot-shape errors. They are ValidationErrors, so errors.As still matches them.
var (
	ErrOutsideWorkingHours error = &ValidationError{Field: "start_time", Reason: "outside working hours"}
	ErrOffGrid             error = &ValidationError{Field: "start_time", Reason: "not an offered slot start"}
)

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
