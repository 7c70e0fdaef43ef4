package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mabgcm/turkiyedental2-sub001/pkg/logger"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 1 << 20
	}
	return c
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and hands each event to a
// Handler. A message whose handler keeps failing is sent to the dead-letter
// writer (when configured) and committed so the partition keeps moving.
type Consumer struct {
	reader     messageReader
	cfg        ConsumerConfig
	handler    Handler
	deadLetter DeadLetterWriter
	logger     *slog.Logger
	closeOnce  sync.Once
}

// NewConsumer creates a consumer. deadLetter may be nil.
func NewConsumer(cfg ConsumerConfig, handler Handler, deadLetter DeadLetterWriter, logger *slog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, deadLetter, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, deadLetter DeadLetterWriter, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		cfg:        cfg.withDefaults(),
		handler:    handler,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.cfg.Topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		if !c.process(ctx, msg) {
			return c.Close()
		}
	}
}

// process handles one message and commits it. It returns false when ctx was
// canceled mid-retry and the message was left uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	consumerMessagesReceived.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.sendToDeadLetter(ctx, msg, err)
		c.commit(ctx, msg)
		return true
	}

	ctx = extractTraceContext(ctx, msg.Headers)
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil {
			break
		}
		c.logger.Warn("handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
		}
	}
	consumerProcessingDuration.WithLabelValues(msg.Topic, c.cfg.GroupID).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		consumerMessagesFailed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
		c.logger.Error("handler gave up",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("retries", c.cfg.MaxRetries),
			slog.String("error", lastErr.Error()),
		)
		c.sendToDeadLetter(ctx, msg, lastErr)
	} else {
		consumerMessagesProcessed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
	}

	c.commit(ctx, msg)
	return true
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.deadLetter == nil {
		return
	}
	if err := c.deadLetter.WriteDeadLetter(ctx, msg, cause, c.cfg.GroupID); err != nil {
		return
	}
	consumerDeadLettered.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
