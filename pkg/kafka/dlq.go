package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeadLetterWriter receives messages the consumer gave up on.
type DeadLetterWriter interface {
	WriteDeadLetter(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// DeadLetterTopic returns "<prefix>.dlq.<topic>".
func DeadLetterTopic(topic string) string {
	return fmt.Sprintf("%s.dlq.%s", TopicPrefix, topic)
}

// DLQProducer copies failed messages to their dead-letter topic with the
// origin recorded in headers.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewDLQProducer creates a DLQ producer for brokers.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchSize:              1,
			BatchTimeout:           100 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// WriteDeadLetter implements DeadLetterWriter.
func (d *DLQProducer) WriteDeadLetter(ctx context.Context, msg kafka.Message, cause error, group string) error {
	topic := DeadLetterTopic(msg.Topic)

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		d.logger.Error("dead-letter publish failed",
			slog.String("dlq_topic", topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	d.logger.Warn("message dead-lettered",
		slog.String("dlq_topic", topic),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", group),
	)
	return nil
}

// Close closes the writer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
