package kafka

import (
	"context"

	"delified/internal/models"
	"delified/internal/sse"
)

// Publisher emits domain events.
type Publisher interface {
	PublishRegistration(ctx context.Context, event models.RegistrationEvent) error
	PublishPayment(ctx context.Context, event models.PaymentEvent) error
	PublishPost(ctx context.Context, event models.PostEvent) error
}

// LocalPublisher is used when Kafka is disabled: registration events go
// straight to the in-process SSE broker and everything else is dropped.
type LocalPublisher struct {
	Broker *sse.RegistrationBroker
}

func (p *LocalPublisher) PublishRegistration(ctx context.Context, event models.RegistrationEvent) error {
	if p.Broker != nil {
		p.Broker.Publish(event)
	}
	return nil
}

func (p *LocalPublisher) PublishPayment(ctx context.Context, event models.PaymentEvent) error {
	return nil
}

func (p *LocalPublisher) PublishPost(ctx context.Context, event models.PostEvent) error {
	return nil
}

func registrationTopic(eventType string) string {
	switch eventType {
	case models.EventRegistrationConfirmed:
		return TopicRegistrationConfirmed
	case models.EventRegistrationCancelled:
		return TopicRegistrationCancelled
	case models.EventRegistrationCheckedIn:
		return TopicRegistrationCheckedIn
	default:
		return TopicRegistrationCreated
	}
}
