package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnprocessable marks a message that will never succeed. Its offset is committed
// without recording it in the inbox.
var ErrUnprocessable = errors.New("unprocessable message")

// Handler applies one message inside the transaction that records it in the inbox.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error)
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type Consumer struct {
	reader     Reader
	txr        TxRunner
	inbox      Inbox
	handler    Handler
	logger     *slog.Logger
	retryDelay time.Duration
}

func New(logger *slog.Logger, txr TxRunner, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	return newConsumer(logger, kafkax.NewReader(cfg.Brokers, cfg.GroupID, cfg.Topic), txr, inboxRepo, handler)
}

func newConsumer(logger *slog.Logger, reader Reader, txr TxRunner, inboxRepo Inbox, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		txr:        txr,
		inbox:      inboxRepo,
		handler:    handler,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed only after the message
// was applied, found to be a duplicate, or rejected as unprocessable; a failing message
// is retried in place. Messages without an event id in the header or payload are skipped.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		// The same message is retried until it leaves the "error" state; moving on
		// would commit past it.
		result := c.process(ctx, msg)
		metrics.IncConsumedEvent(msg.Topic, result)
		for result == "error" {
			if !c.sleep(ctx) {
				return
			}
			result = c.process(ctx, msg)
			metrics.IncConsumedEvent(msg.Topic, result)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) string {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		meta.EventID = payloadEventID(msg.Value)
	}
	span.SetAttributes(attribute.String("messaging.message.id", meta.EventID))
	if meta.EventID == "" {
		c.logger.Warn("event skipped", "err", "missing event id", "topic", msg.Topic, "offset", msg.Offset)
		span.SetStatus(codes.Error, "unprocessable")
		return "skipped"
	}

	duplicate := false
	err := c.txr.WithTx(ctxSpan, func(tx pgx.Tx) error {
		ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			duplicate = true
			return nil
		}
		return c.handler(ctxSpan, tx, msg)
	})

	switch {
	case err == nil && duplicate:
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return "duplicate"
	case err == nil:
		return "applied"
	case errors.Is(err, ErrUnprocessable):
		c.logger.Warn("event skipped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.SetStatus(codes.Error, "unprocessable")
		return "skipped"
	default:
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler error")
		return "error"
	}
}

// payloadEventID reads a top-level "event_id" for producers that do not set the header.
func payloadEventID(value []byte) string {
	var envelope struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.EventID)
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
