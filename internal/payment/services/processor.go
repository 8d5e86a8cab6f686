package services

import (
	"context"
	"errors"
	"fmt"

	"delified/internal/models"
)

var ErrProcessor = errors.New("payment processor error")

// IntentState is the processor's view of a payment.
type IntentState struct {
	Status        models.PaymentStatus
	FailureReason string
}

// Processor opens, inspects and cancels payment intents with a provider.
type Processor interface {
	Name() string
	CreateIntent(ctx context.Context, payment *models.Payment) (*models.PaymentIntent, error)
	IntentStatus(ctx context.Context, ref string) (IntentState, error)
	CancelIntent(ctx context.Context, ref string) error
}

// ManualProcessor settles every payment as soon as it is submitted. It stands
// in for a provider in development and for offline (bank transfer) flows.
type ManualProcessor struct{}

func (ManualProcessor) Name() string { return "manual" }

func (ManualProcessor) CreateIntent(ctx context.Context, payment *models.Payment) (*models.PaymentIntent, error) {
	if payment.ID == "" {
		return nil, fmt.Errorf("%w: payment id required", ErrProcessor)
	}
	return &models.PaymentIntent{Ref: "manual_" + payment.ID}, nil
}

func (ManualProcessor) IntentStatus(ctx context.Context, ref string) (IntentState, error) {
	return IntentState{Status: models.StatusSuccess}, nil
}

func (ManualProcessor) CancelIntent(ctx context.Context, ref string) error {
	return nil
}
