package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"delified/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test"

func intentEvent(eventType, intentID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "data": {"object": {
    "id": %q,
    "object": "payment_intent",
    "status": "succeeded",
    "metadata": {"payment_id": %q},
    "last_payment_error": {"message": "Your card was declined."}
  }}
}`, eventType, intentID, paymentID))
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func pendingPayment(t *testing.T, f *fixture) *models.Payment {
	t.Helper()
	reg := f.registration(t, models.RegistrationPending)
	payment, err := f.svc.Checkout(context.Background(), delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)
	return payment
}

func TestWebhook_Succeeded(t *testing.T) {
	f := newFixture(t)
	f.svc.WebhookSecret = testWebhookSecret
	payment := pendingPayment(t, f)

	payload := intentEvent("payment_intent.succeeded", payment.ProviderRef, payment.ID)
	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload)))

	got, err := f.store.GetPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, models.RegistrationConfirmed, f.registrationStatus(t, payment.RegistrationID))

	// stripe retries deliveries
	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload)))
}

func TestWebhook_FailedFallsBackToProviderRef(t *testing.T) {
	f := newFixture(t)
	f.svc.WebhookSecret = testWebhookSecret
	payment := pendingPayment(t, f)

	payload := intentEvent("payment_intent.payment_failed", payment.ProviderRef, "")
	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload)))

	got, err := f.store.GetPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "Your card was declined.", got.FailureReason)
	assert.Equal(t, models.RegistrationCancelled, f.registrationStatus(t, payment.RegistrationID))
}

func TestWebhook_Errors(t *testing.T) {
	f := newFixture(t)
	payload := intentEvent("payment_intent.succeeded", "pi_x", "pay-x")

	err := f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload))
	var werr *WebhookError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "configuration", werr.Category)
	assert.Equal(t, http.StatusInternalServerError, werr.StatusCode)

	f.svc.WebhookSecret = testWebhookSecret
	err = f.svc.HandleStripeWebhook(context.Background(), payload, "t=1,v1=bad")
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "validation", werr.Category)
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)
}

func TestWebhook_IgnoresUnknownEventsAndPayments(t *testing.T) {
	f := newFixture(t)
	f.svc.WebhookSecret = testWebhookSecret

	payload := intentEvent("charge.refunded", "pi_x", "pay-x")
	assert.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload)))

	payload = intentEvent("payment_intent.succeeded", "pi_x", "pay-unknown")
	assert.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sign(payload)))
}
