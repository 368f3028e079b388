package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"golang.org/x/time/rate"
)

type job struct {
	url     string
	payload Payload
}

// Dispatcher delivers booking notifications in the background. Notify never blocks: when
// the queue is full the notification is dropped and counted.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	limiter *rate.Limiter
	queue   chan job
	workers int
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

type DispatcherConfig struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	SendTimeout   time.Duration
}

func NewDispatcher(sender Sender, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		queue:   make(chan job, cfg.QueueSize),
		workers: cfg.Workers,
		timeout: cfg.SendTimeout,
		now:     time.Now,
	}
}

// Notify enqueues a webhook for bk when the business plan allows notifications and a
// webhook url is configured.
func (d *Dispatcher) Notify(_ context.Context, b model.Business, svc model.Service, bk model.Booking) {
	if b.WebhookURL == "" || !b.NotificationsEnabled(d.now()) {
		metrics.IncNotification("skipped")
		return
	}
	j := job{url: b.WebhookURL, payload: NewPayload(b, svc, bk)}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncNotification("dropped")
		d.logger.Warn("notification dispatcher stopped; dropping", "booking_id", bk.ID, "business_id", b.ID)
		return
	}
	select {
	case d.queue <- j:
	default:
		metrics.IncNotification("dropped")
		d.logger.Warn("notification queue full; dropping", "booking_id", bk.ID, "business_id", b.ID)
	}
}

// Run starts the workers and blocks until ctx is done and queued jobs are drained.
// Notify calls after ctx is done are counted as dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	workCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(workCtx)
		}()
	}

	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	stop()
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case j := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				d.send(context.WithoutCancel(ctx), j)
				continue
			}
			d.send(ctx, j)
		}
	}
}

// drain delivers what is already queued, without rate limiting, using a fresh deadline.
func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.send(context.Background(), j)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(ctx, j.url, j.payload); err != nil {
		metrics.IncNotification("failed")
		d.logger.Warn("booking notification failed", "appointment_id", j.payload.AppointmentID, "err", err)
		return
	}
	metrics.IncNotification("sent")
	d.logger.Debug("booking notification sent", "appointment_id", j.payload.AppointmentID)
}

// NewPayload renders bk for a webhook. Date and time are wall-clock values in the
// business timezone.
func NewPayload(b model.Business, svc model.Service, bk model.Booking) Payload {
	local := bk.ScheduledAt.In(b.Location())
	return Payload{
		ClientName:      bk.Client.Name,
		ClientPhone:     bk.Client.Phone,
		ClientEmail:     bk.Client.Email,
		Service:         svc.Name,
		ServiceDuration: bk.DurationMinutes,
		ServicePrice:    svc.Price,
		Date:            local.Format("2006-01-02"),
		Time:            local.Format("15:04"),
		Business:        b.Name,
		AppointmentID:   bk.ID,
		Status:          string(bk.Status),
	}
}
