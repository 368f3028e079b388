package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
)

// Repository de-duplicates consumed events by id.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record inserts the event id inside tx and reports false when it was seen before.
// The insert runs under a savepoint so a duplicate leaves tx usable.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	_, err = sp.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, sp.Commit(ctx)
	}
	_ = sp.Rollback(ctx)

	if db.HasCode(err, db.CodeUniqueViolation) {
		return false, nil
	}
	return false, err
}
