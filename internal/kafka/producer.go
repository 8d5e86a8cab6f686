package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delified/internal/logger"
	"delified/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer  MessageWriter
	Brokers []string
	Logger  *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Brokers: brokers, Logger: log}
}

// Publish writes value to topic. On failure the topic is created and the
// write retried once.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value}

	err := p.Writer.WriteMessages(ctx, msg)
	if err == nil {
		p.Logger.LogKafka("PUBLISH", topic, key)
		return nil
	}

	p.Logger.Warn("KAFKA", fmt.Sprintf("Publish to %s failed, ensuring topic: %v", topic, err))
	if len(p.Brokers) > 0 {
		if terr := EnsureTopicsExist(ctx, p.Brokers, []string{topic}, p.Logger); terr != nil {
			p.Logger.Error("KAFKA", fmt.Sprintf("Failed to create topic %s: %v", topic, terr))
		}
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH_RETRY", topic, key)
	return nil
}

func (p *Producer) publishJSON(ctx context.Context, topic, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return p.Publish(ctx, topic, key, value)
}

func (p *Producer) PublishRegistration(ctx context.Context, event models.RegistrationEvent) error {
	return p.publishJSON(ctx, registrationTopic(event.Type), event.RegistrationID, event)
}

func (p *Producer) PublishPayment(ctx context.Context, event models.PaymentEvent) error {
	return p.publishJSON(ctx, TopicPaymentSucceeded, event.PaymentID, event)
}

func (p *Producer) PublishPost(ctx context.Context, event models.PostEvent) error {
	return p.publishJSON(ctx, TopicPostCreated, event.PostID, event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
