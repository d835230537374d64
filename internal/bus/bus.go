// Package bus wraps the Kafka client with the pipeline's envelope
// conventions: JSON payloads, the decimal source_id as the message key so a
// user's messages land on one partition, and at-least-once consumption with
// offsets committed only after the handler returns.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher writes JSON envelopes to topics.
type Publisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewPublisher creates a publisher against the given broker address.
// The hash balancer keyed on source_id preserves per-user ordering.
func NewPublisher(broker string, log zerolog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// Publish JSON-marshals payload and writes it to topic keyed by sourceID.
func (p *Publisher) Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for topic %s: %w", topic, err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(sourceID, 10)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to topic %s: %w", topic, err)
	}
	p.log.Debug().Str("topic", topic).Int64("source_id", sourceID).Msg("published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Handler processes one message. The raw value is passed through even when
// it is not valid JSON; decoding is the stage's responsibility so that a
// malformed payload can be logged with its topic before being dropped.
type Handler func(ctx context.Context, topic string, value []byte) error

// Consumer reads one topic within a consumer group. One consumer is owned by
// exactly one goroutine; messages on a partition are handled sequentially.
type Consumer struct {
	reader *kafka.Reader
	log    zerolog.Logger
}

// NewConsumer creates a group consumer for topic. New groups start from the
// earliest offset.
func NewConsumer(broker, topic, groupID string, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{broker},
			Topic:          topic,
			GroupID:        groupID,
			StartOffset:    kafka.FirstOffset,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // synchronous commits
		}),
		log: log,
	}
}

// Loop fetches messages and runs the handler to completion before committing
// the offset. A handler error counts as a handled (dropped) message: the
// offset still advances, per the pipeline's drop-at-boundary policy. Loop
// returns when ctx is cancelled.
func (c *Consumer) Loop(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := handler(ctx, msg.Topic, msg.Value); err != nil {
			c.log.Warn().
				Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("message dropped")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Decode unmarshals a message value into dst, naming the topic on failure.
func Decode(topic string, value []byte, dst interface{}) error {
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", topic, err)
	}
	return nil
}
