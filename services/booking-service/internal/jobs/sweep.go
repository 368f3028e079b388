package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Completer marks elapsed confirmed bookings as completed, returning how many it changed.
type Completer interface {
	CompleteElapsed(ctx context.Context, limit int) (int, error)
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Sweep periodically completes bookings whose end time has passed.
type Sweep struct {
	completer Completer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewSweep(completer Completer, logger *slog.Logger, cfg SweepConfig) *Sweep {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweep{
		completer: completer,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("completion sweep failed", "err", err)
			}
		}
	}
}

// RunOnce drains elapsed bookings batch by batch until a batch comes back short.
func (s *Sweep) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.completer.CompleteElapsed(ctx, s.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.batchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		s.logger.Info("completed elapsed bookings", "count", total)
	}
	return total, nil
}
