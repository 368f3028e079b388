package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const TopicPlanChanged = "billing.plan.changed.v1"

type planChangedPayload struct {
	BusinessID   string     `json:"business_id"`
	Plan         string     `json:"plan"`
	MonthlyLimit *int       `json:"monthly_limit,omitempty"`
	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
}

type PlanUpdater interface {
	UpdatePlan(ctx context.Context, tx pgx.Tx, c storage.PlanChange) error
}

// ParsePlanChanged decodes a billing plan change. A missing monthly_limit on the free
// plan falls back to model.DefaultMonthlyLimit.
func ParsePlanChanged(data []byte) (storage.PlanChange, error) {
	var p planChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return storage.PlanChange{}, fmt.Errorf("%w: decode: %v", ErrUnprocessable, err)
	}
	if _, err := uuid.Parse(p.BusinessID); err != nil {
		return storage.PlanChange{}, fmt.Errorf("%w: business_id %q", ErrUnprocessable, p.BusinessID)
	}
	plan, err := model.ParsePlan(p.Plan)
	if err != nil {
		return storage.PlanChange{}, fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}

	c := storage.PlanChange{BusinessID: p.BusinessID, Plan: plan}
	switch {
	case p.MonthlyLimit != nil && *p.MonthlyLimit < 0:
		return storage.PlanChange{}, fmt.Errorf("%w: negative monthly_limit", ErrUnprocessable)
	case p.MonthlyLimit != nil:
		c.MonthlyLimit = *p.MonthlyLimit
	case plan == model.PlanFree:
		c.MonthlyLimit = model.DefaultMonthlyLimit
	}
	if plan == model.PlanTrial && p.TrialEndsAt != nil {
		t := p.TrialEndsAt.UTC()
		c.TrialEndsAt = &t
	}
	return c, nil
}

// PlanHandler applies billing plan changes to the businesses table.
func PlanHandler(repo PlanUpdater, logger *slog.Logger) Handler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		change, err := ParsePlanChanged(msg.Value)
		if err != nil {
			return err
		}
		if err := repo.UpdatePlan(ctx, tx, change); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("%w: unknown business %s", ErrUnprocessable, change.BusinessID)
			}
			return fmt.Errorf("update plan: %w", err)
		}
		logger.Info("business plan updated", "business_id", change.BusinessID, "plan", change.Plan, "monthly_limit", change.MonthlyLimit)
		return nil
	}
}
