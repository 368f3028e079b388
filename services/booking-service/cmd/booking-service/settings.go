package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
)

type settings struct {
	Service        string
	Port           string
	GRPCPort       string
	DatabaseURL    string
	MigrateOnStart bool

	KafkaBrokers   string
	KafkaGroupID   string
	KafkaPlanTopic string

	RedisAddr          string
	CORSOrigins        []string
	RateLimitPerMinute int
	MaxBodyBytes       int64
	RequestTimeout     time.Duration

	DefaultsEnabled  bool
	SlotStep         time.Duration
	UnassignedPolicy availability.UnassignedPolicy

	SweepInterval time.Duration
	SweepBatch    int

	NotifyWorkers     int
	NotifyQueueSize   int
	NotifyRatePerSec  float64
	NotifySendTimeout time.Duration
}

func loadSettings() (settings, error) {
	s := settings{
		Service:        config.String("SERVICE_NAME", "booking-service"),
		KafkaBrokers:   config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:   config.String("KAFKA_GROUP_ID", "booking-service"),
		KafkaPlanTopic: config.String("KAFKA_PLAN_TOPIC", "billing.plan.changed.v1"),
		RedisAddr:      config.String("REDIS_ADDR", ""),
		CORSOrigins:    config.List("CORS_ALLOWED_ORIGINS"),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return settings{}, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return settings{}, err
	}
	if s.MigrateOnStart, err = config.Bool("MIGRATE_ON_START", true); err != nil {
		return settings{}, err
	}
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return settings{}, err
	}
	maxBody, err := config.Int("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return settings{}, err
	}
	s.MaxBodyBytes = int64(maxBody)
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return settings{}, err
	}
	if s.DefaultsEnabled, err = config.Bool("SCHEDULE_DEFAULTS_ENABLED", true); err != nil {
		return settings{}, err
	}
	stepMinutes, err := config.Int("SLOT_STEP_MINUTES", int(availability.DefaultStep/time.Minute))
	if err != nil {
		return settings{}, err
	}
	if stepMinutes <= 0 {
		return settings{}, fmt.Errorf("SLOT_STEP_MINUTES must be positive, got %d", stepMinutes)
	}
	s.SlotStep = time.Duration(stepMinutes) * time.Minute
	if s.UnassignedPolicy, err = availability.ParseUnassignedPolicy(config.String("UNASSIGNED_STAFF_POLICY", "all")); err != nil {
		return settings{}, err
	}
	if s.SweepInterval, err = config.Duration("COMPLETION_SWEEP_INTERVAL", time.Minute); err != nil {
		return settings{}, err
	}
	if s.SweepBatch, err = config.Int("COMPLETION_SWEEP_BATCH", 100); err != nil {
		return settings{}, err
	}
	if s.NotifyWorkers, err = config.Int("NOTIFY_WORKERS", 2); err != nil {
		return settings{}, err
	}
	if s.NotifyQueueSize, err = config.Int("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return settings{}, err
	}
	rate, err := config.Int("NOTIFY_RATE_PER_SECOND", 10)
	if err != nil {
		return settings{}, err
	}
	s.NotifyRatePerSec = float64(rate)
	if s.NotifySendTimeout, err = config.Duration("NOTIFY_SEND_TIMEOUT", 10*time.Second); err != nil {
		return settings{}, err
	}
	return s, nil
}
