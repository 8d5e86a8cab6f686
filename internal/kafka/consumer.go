package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delified/internal/logger"
	"delified/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RegistrationSink receives decoded registration events.
type RegistrationSink interface {
	Publish(event models.RegistrationEvent)
}

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
	// Backoff paces retries after read errors. Nil means exponential up to 30s.
	Backoff backoff.BackOff
}

// NewRegistrationConsumer reads every registration topic. groupID must be
// unique per instance so each instance sees every event.
func NewRegistrationConsumer(brokers []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: RegistrationTopics,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// Run forwards events to sink until ctx is cancelled. Read errors are logged
// and retried with backoff.
func (c *Consumer) Run(ctx context.Context, sink RegistrationSink) error {
	c.Logger.Info("KAFKA", "Registration consumer started")

	retry := c.Backoff
	if retry == nil {
		exp := backoff.NewExponentialBackOff()
		exp.MaxInterval = 30 * time.Second
		exp.MaxElapsedTime = 0
		retry = exp
	}

	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message, retrying in %s: %v", wait, err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		var event models.RegistrationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message on %s: %v", msg.Topic, err))
			continue
		}

		c.Logger.LogKafka("CONSUME", msg.Topic, event.RegistrationID)
		sink.Publish(event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
