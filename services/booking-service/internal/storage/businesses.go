package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type BusinessRepository struct {
	pool *db.Pool
}

func NewBusinessRepository(pool *db.Pool) *BusinessRepository {
	return &BusinessRepository{pool: pool}
}

const businessColumns = `id::text, name, slug, timezone, plan, monthly_limit, trial_ends_at, COALESCE(webhook_url, '')`

func scanBusiness(row pgx.Row) (model.Business, error) {
	var b model.Business
	var plan string
	if err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Timezone, &plan, &b.MonthlyLimit, &b.TrialEndsAt, &b.WebhookURL); err != nil {
		return model.Business{}, err
	}
	b.Plan = model.Plan(plan)
	return b, nil
}

// Get loads a business with its weekly schedule.
func (r *BusinessRepository) Get(ctx context.Context, businessID string) (model.Business, error) {
	if !validID(businessID) {
		return model.Business{}, model.ErrNotFound
	}
	b, err := scanBusiness(r.pool.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE id = $1
	`, businessID))
	if err != nil {
		return model.Business{}, mapError(err)
	}
	return r.withSchedule(ctx, b)
}

// GetBySlug resolves the public booking link.
func (r *BusinessRepository) GetBySlug(ctx context.Context, slug string) (model.Business, error) {
	b, err := scanBusiness(r.pool.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE slug = $1
	`, slug))
	if err != nil {
		return model.Business{}, mapError(err)
	}
	return r.withSchedule(ctx, b)
}

func (r *BusinessRepository) withSchedule(ctx context.Context, b model.Business) (model.Business, error) {
	entries, err := r.ListWeeklySchedule(ctx, b.ID)
	if err != nil {
		return model.Business{}, err
	}
	b.Schedule = entries
	return b, nil
}

func (r *BusinessRepository) ListWeeklySchedule(ctx context.Context, businessID string) ([]model.WeeklyScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, lunch_start_minute, lunch_end_minute
		FROM weekly_schedule
		WHERE business_id = $1
		ORDER BY weekday ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list weekly schedule: %w", err)
	}
	defer rows.Close()

	var out []model.WeeklyScheduleEntry
	for rows.Next() {
		var weekday, start, end int
		var lunchStart, lunchEnd *int
		if err := rows.Scan(&weekday, &start, &end, &lunchStart, &lunchEnd); err != nil {
			return nil, err
		}
		e := model.WeeklyScheduleEntry{
			Weekday: time.Weekday(weekday),
			Start:   model.Clock(start),
			End:     model.Clock(end),
		}
		if lunchStart != nil && lunchEnd != nil {
			ls, le := model.Clock(*lunchStart), model.Clock(*lunchEnd)
			e.LunchStart, e.LunchEnd = &ls, &le
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceWeeklySchedule swaps the whole schedule of a business in one transaction.
func (r *BusinessRepository) ReplaceWeeklySchedule(ctx context.Context, businessID string, entries []model.WeeklyScheduleEntry) error {
	if !validID(businessID) {
		return model.ErrNotFound
	}
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `SELECT 1 FROM businesses WHERE id = $1 FOR UPDATE`, businessID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM weekly_schedule WHERE business_id = $1`, businessID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			var lunchStart, lunchEnd *int
			if e.HasLunch() {
				ls, le := int(*e.LunchStart), int(*e.LunchEnd)
				lunchStart, lunchEnd = &ls, &le
			}
			batch.Queue(`
				INSERT INTO weekly_schedule (business_id, weekday, start_minute, end_minute, lunch_start_minute, lunch_end_minute)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, businessID, int(e.Weekday), int(e.Start), int(e.End), lunchStart, lunchEnd)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

type PlanChange struct {
	BusinessID   string
	Plan         model.Plan
	MonthlyLimit int
	TrialEndsAt  *time.Time
}

// UpdatePlan applies a billing plan change inside tx.
func (r *BusinessRepository) UpdatePlan(ctx context.Context, tx pgx.Tx, c PlanChange) error {
	tag, err := tx.Exec(ctx, `
		UPDATE businesses
		SET plan = $2,
			monthly_limit = $3,
			trial_ends_at = $4,
			updated_at = now()
		WHERE id = $1
	`, c.BusinessID, string(c.Plan), c.MonthlyLimit, c.TrialEndsAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
