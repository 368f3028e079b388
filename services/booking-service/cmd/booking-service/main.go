package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/migrations"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const publicPrefix = "/api/v1/public/"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
	}
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, migrations.FS, ".", logger); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	metrics.Register()

	outboxRepo := outbox.NewRepository()
	businessRepo := storage.NewBusinessRepository(pool)
	catalogRepo := storage.NewCatalogRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)

	engine := availability.NewEngine(
		availability.NewCalendar(cfg.DefaultsEnabled),
		availability.SlotGenerator{Step: cfg.SlotStep},
		availability.ConflictChecker{Unassigned: cfg.UnassignedPolicy},
		bookingRepo,
	)
	dispatcher := notify.NewDispatcher(notify.NewWebhookSender(cfg.NotifySendTimeout), logger, notify.DispatcherConfig{
		Workers:       cfg.NotifyWorkers,
		QueueSize:     cfg.NotifyQueueSize,
		RatePerSecond: cfg.NotifyRatePerSec,
		SendTimeout:   cfg.NotifySendTimeout,
	})
	txn := booking.NewTransaction(bookingRepo, catalogRepo, engine, dispatcher, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	sweep := jobs.NewSweep(txn, logger, jobs.SweepConfig{Interval: cfg.SweepInterval, BatchSize: cfg.SweepBatch})

	// Workers stop only after the HTTP server has finished in-flight requests.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	var workers sync.WaitGroup
	background := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}
	background(dispatcher.Run)
	background(outboxPublisher.Run)
	background(sweep.Run)
	if cfg.KafkaBrokers != "" && cfg.KafkaPlanTopic != "" {
		planConsumer := consumer.New(logger, pool, inbox.NewRepository(), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaPlanTopic,
		}, consumer.PlanHandler(businessRepo, logger))
		background(planConsumer.Run)
	} else {
		logger.Warn("plan consumer disabled (no kafka brokers configured)")
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true},
	}

	var limiter httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "booking:rl").Middleware(logger, true)
	} else {
		local := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		background(func(ctx context.Context) { sweepVisitors(ctx, local) })
		limiter = local.Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())

	public := handlers.NewPublicHandler(businessRepo, catalogRepo, engine, txn, logger)
	appointments := handlers.NewAppointmentHandler(businessRepo, bookingRepo, txn, logger)
	schedule := handlers.NewScheduleHandler(businessRepo, businessRepo, logger)
	mux.HandleFunc("/api/v1/public/business", public.Business)
	mux.HandleFunc("/api/v1/public/staff", public.Staff)
	mux.HandleFunc("/api/v1/public/slots", public.Slots)
	mux.HandleFunc("/api/v1/public/book", public.Book)
	mux.HandleFunc("/api/v1/business/schedule", schedule.Schedule)
	mux.HandleFunc("/api/v1/appointments", appointments.List)
	mux.HandleFunc("/api/v1/appointments/cancel", appointments.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", appointments.Complete)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(newHTTPHandler(mux, cfg, logger, limiter), "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort); err != nil {
		logger.Error("grpc server start failed", "err", err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	stopWorkers()
	workers.Wait()
	logger.Info("http server stopped")
}

// newHTTPHandler wraps mux in the middleware chain. CORS answers preflights for the public
// booking page before the rate limiter sees them.
func newHTTPHandler(mux http.Handler, cfg settings, logger *slog.Logger, limiter httpx.Middleware) http.Handler {
	return httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.OnlyPrefix(publicPrefix, httpx.WithCORS(httpx.PublicCORS(cfg.CORSOrigins))),
		httpx.OnlyPrefix(publicPrefix, limiter),
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
}

func sweepVisitors(ctx context.Context, rl *httpx.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}
