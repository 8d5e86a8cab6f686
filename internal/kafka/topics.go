package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"delified/internal/logger"

	"github.com/segmentio/kafka-go"
)

const (
	TopicRegistrationCreated   = "delified.registration.created"
	TopicRegistrationConfirmed = "delified.registration.confirmed"
	TopicRegistrationCancelled = "delified.registration.cancelled"
	TopicRegistrationCheckedIn = "delified.registration.checked_in"
	TopicPaymentSucceeded      = "delified.payment.succeeded"
	TopicPostCreated           = "delified.community.post.created"
)

// RegistrationTopics are the topics streamed to organizer dashboards.
var RegistrationTopics = []string{
	TopicRegistrationCreated,
	TopicRegistrationConfirmed,
	TopicRegistrationCancelled,
	TopicRegistrationCheckedIn,
}

func AllTopics() []string {
	return append(append([]string{}, RegistrationTopics...), TopicPaymentSucceeded, TopicPostCreated)
}

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	// Connect to the first broker to find the controller
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
		case err != nil:
			// Continue trying to create other topics even if one fails
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		default:
			log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
		}
	}

	// Wait a moment for topics to be fully created
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	return nil
}
