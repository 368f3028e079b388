package storage

import (
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// mapError turns driver errors into domain errors where one applies.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return model.ErrNotFound
	case db.HasCode(err, db.CodeExclusionViolation):
		return model.ErrConflict
	default:
		return err
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
