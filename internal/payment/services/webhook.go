package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError carries the status and client-safe text for a rejected
// webhook. Error() is for logs only.
type WebhookError struct {
	Category    string // configuration, validation or processing
	StatusCode  int
	PublicError string
	Detail      string
	OriginalErr error
}

func (e *WebhookError) Error() string {
	if e.OriginalErr == nil {
		return e.Detail
	}
	return e.Detail + ": " + e.OriginalErr.Error()
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

func webhookFailure(category string, status int, public, detail string, err error) *WebhookError {
	return &WebhookError{Category: category, StatusCode: status, PublicError: public, Detail: detail, OriginalErr: err}
}

// HandleStripeWebhook verifies a Stripe event and applies payment outcomes.
// Unknown event types are acknowledged and ignored.
func (s *CheckoutService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.WebhookSecret == "" {
		s.Logger.Error("WEBHOOK", "STRIPE_WEBHOOK_SECRET is empty, rejecting event")
		return webhookFailure("configuration", http.StatusInternalServerError,
			"Webhook processing error", "stripe webhook secret missing", nil)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return webhookFailure("validation", http.StatusBadRequest,
			"Invalid webhook signature", "signature check", err)
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("stripe event %s (%s)", event.ID, event.Type))
	default:
		s.Logger.Debug("WEBHOOK", fmt.Sprintf("ignoring stripe event type %s", event.Type))
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return webhookFailure("processing", http.StatusBadRequest,
			"Invalid event data", "decode payment intent", err)
	}

	paymentID, err := s.paymentForIntent(ctx, &intent)
	if err == nil {
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			_, err = s.MarkPaid(ctx, paymentID)
		} else {
			reason := "payment failed"
			if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
				reason = intent.LastPaymentError.Msg
			}
			_, err = s.MarkFailed(ctx, paymentID, reason)
		}
	}

	switch {
	case errors.Is(err, ErrPaymentNotFound):
		// not one of ours; retrying will not help
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("intent %s has no matching payment", intent.ID))
		return nil
	case errors.Is(err, ErrPaymentClosed):
		return nil
	case err != nil:
		return s.processingError(intent.ID, err)
	}

	s.Logger.LogPayment(string(event.Type), paymentID, "applied from webhook")
	return nil
}

func (s *CheckoutService) paymentForIntent(ctx context.Context, intent *stripe.PaymentIntent) (string, error) {
	if id := intent.Metadata["payment_id"]; id != "" {
		return id, nil
	}
	payment, err := s.Store.GetPaymentByProviderRef(ctx, intent.ID)
	if err != nil {
		return "", err
	}
	return payment.ID, nil
}

func (s *CheckoutService) processingError(intentID string, err error) *WebhookError {
	detail := "apply intent " + intentID
	s.Logger.Error("WEBHOOK", fmt.Sprintf("%s: %v", detail, err))
	return webhookFailure("processing", http.StatusInternalServerError, "Failed to process payment", detail, err)
}
