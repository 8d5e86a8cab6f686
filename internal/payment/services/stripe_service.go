package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"delified/internal/logger"
	"delified/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// intentAPI is the subset of the Stripe PaymentIntents client in use.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeService handles integration with Stripe payment gateway
type StripeService struct {
	intents intentAPI
	log     *logger.Logger
}

func NewStripeService(secretKey string, log *logger.Logger) *StripeService {
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{intents: sc.PaymentIntents, log: log}
}

func (s *StripeService) Name() string { return "stripe" }

// Currencies Stripe charges in whole units or in thousandths.
var (
	zeroDecimal = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimal = map[string]bool{"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true}
)

// toMinorUnits converts to the smallest currency unit Stripe expects.
// Three-decimal amounts are rounded to a multiple of 10 as Stripe requires.
func toMinorUnits(amount float64, currency string) int64 {
	currency = strings.ToLower(currency)
	switch {
	case zeroDecimal[currency]:
		return int64(math.Round(amount))
	case threeDecimal[currency]:
		return int64(math.Round(amount*100)) * 10
	default:
		return int64(math.Round(amount * 100))
	}
}

func (s *StripeService) CreateIntent(ctx context.Context, payment *models.Payment) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(payment.Amount, payment.Currency)),
		Currency: stripe.String(payment.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", payment.ID)
	params.AddMetadata("registration_id", payment.RegistrationID)
	params.SetIdempotencyKey("delified-" + payment.ID)

	pi, err := s.intents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrProcessor, err)
	}

	s.log.Info("STRIPE", fmt.Sprintf("Payment intent created: %s (paymentID: %s)", pi.ID, payment.ID))
	return &models.PaymentIntent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeService) IntentStatus(ctx context.Context, ref string) (IntentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(ref, params)
	if err != nil {
		return IntentState{}, fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	return intentState(pi), nil
}

func intentState(pi *stripe.PaymentIntent) IntentState {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentState{Status: models.StatusSuccess}
	case stripe.PaymentIntentStatusCanceled:
		return IntentState{Status: models.StatusCancelled, FailureReason: string(pi.CancellationReason)}
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a declined attempt drops the intent back to requires_payment_method
		if pi.LastPaymentError != nil {
			return IntentState{Status: models.StatusFailed, FailureReason: pi.LastPaymentError.Msg}
		}
	}
	return IntentState{Status: models.StatusPending}
}

func (s *StripeService) CancelIntent(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := s.intents.Cancel(ref, params); err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to cancel payment intent %s: %v", ref, err))
		return fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Successfully cancelled payment intent: %s", ref))
	return nil
}
