// Package kafka carries index.complete announcements between the indexer
// and searchers over segmentio/kafka-go. Events travel as JSON with their
// type in a header.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message is what a MessageHandler sees of a Kafka record.
type Message struct {
	Key   []byte
	Type  string
	Value []byte
}

// MessageHandler processes one record. A nil return commits it; an error
// leaves it uncommitted for redelivery after a restart or rebalance.
type MessageHandler func(ctx context.Context, msg Message) error

// fetcher is the part of *kafka.Reader the consume loop needs.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds the records of one topic to a MessageHandler.
type Consumer struct {
	reader  fetcher
	handler MessageHandler
	backoff time.Duration
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. Searchers only care about
// snapshots published after they start, so a new group begins at the
// latest offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r fetcher, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		backoff: time.Second,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx ends and then closes the reader. Fetch errors
// are logged and retried after a pause.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err, "retry_in", c.backoff)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
			}
			continue
		}
		c.dispatch(ctx, msg)
	}
}

// dispatch runs the handler on msg and commits it on success. It reports
// whether the record was committed.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) bool {
	m := Message{Key: msg.Key, Type: headerValue(msg.Headers, HeaderEventType), Value: msg.Value}
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(m.Key), "type", m.Type)
	if err := c.handler(ctx, m); err != nil {
		log.Error("handler failed, leaving message uncommitted", "error", err)
		return false
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("failed to commit message", "error", err)
		return false
	}
	return true
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
