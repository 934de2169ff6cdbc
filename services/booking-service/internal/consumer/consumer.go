package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/specialistbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/specialistbook/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	return &Consumer{
		reader:  kafkax.NewReader(cfg.Brokers, cfg.Topic, cfg.GroupID),
		logger:  logger.With("topic", cfg.Topic),
		inbox:   inbox,
		handler: handler,
	}
}

// Run reads until ctx is cancelled and returns nil on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		_ = c.Process(ctx, msg)
	}
}

// Process handles one message: trace extraction, inbox dedup, then the handler.
// Errors are logged and returned; the message is not redelivered.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) (err error) {
	ctx, span := otelx.Start(kafkax.ExtractTraceContext(ctx, msg), "kafka", "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer func() { otelx.Finish(span, err) }()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Error("event without id dropped", "event_type", meta.EventType)
		return errors.New("event id missing")
	}

	ok, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		return err
	}
	return nil
}
