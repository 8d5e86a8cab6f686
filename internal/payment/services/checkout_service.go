package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/payment/storage"
	regdb "delified/internal/registrations/db"
	"delified/internal/utils"
)

var (
	ErrPaymentNotFound      = storage.ErrPaymentNotFound
	ErrRegistrationNotFound = regdb.ErrRegistrationNotFound

	ErrForbidden     = errors.New("not allowed to access this payment")
	ErrNotPayable    = errors.New("registration is not awaiting payment")
	ErrPaymentClosed = errors.New("payment is no longer pending")
)

const sweepBatch = 100

type RegistrationStore interface {
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	UpdateStatus(ctx context.Context, id string, to models.RegistrationStatus, from ...models.RegistrationStatus) (bool, error)
}

// CheckoutHolds keeps the checkout window of a pending payment.
type CheckoutHolds interface {
	Hold(ctx context.Context, paymentID, registrationID string) error
	Release(ctx context.Context, paymentID string) error
}

type EventPublisher interface {
	PublishRegistration(ctx context.Context, event models.RegistrationEvent) error
	PublishPayment(ctx context.Context, event models.PaymentEvent) error
}

type CheckoutService struct {
	Store         storage.Store
	Registrations RegistrationStore
	Processor     Processor
	Holds         CheckoutHolds
	Events        EventPublisher
	Logger        *logger.Logger
	WebhookSecret string
	HoldDuration  time.Duration
	now           func() time.Time
}

func NewCheckoutService(store storage.Store, regs RegistrationStore, processor Processor, holds CheckoutHolds, events EventPublisher, holdDuration time.Duration, log *logger.Logger) *CheckoutService {
	return &CheckoutService{
		Store:         store,
		Registrations: regs,
		Processor:     processor,
		Holds:         holds,
		Events:        events,
		Logger:        log,
		HoldDuration:  holdDuration,
		now:           time.Now,
	}
}

// Checkout opens a payment for the caller's pending registration. A payment
// that is already pending for the registration is handed back instead.
func (s *CheckoutService) Checkout(ctx context.Context, p *models.Principal, req models.CheckoutRequest) (*models.Payment, error) {
	reg, err := s.Registrations.GetRegistration(ctx, req.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != p.UserID {
		return nil, ErrForbidden
	}
	if reg.Status != models.RegistrationPending {
		return nil, fmt.Errorf("%w: registration is %s", ErrNotPayable, reg.Status)
	}

	existing, err := s.Store.GetPendingByRegistration(ctx, reg.ID)
	if err == nil {
		s.Logger.LogPayment("REUSED", existing.ID, fmt.Sprintf("registration=%s", reg.ID))
		return existing, nil
	}
	if !errors.Is(err, storage.ErrPaymentNotFound) {
		return nil, err
	}

	payment := &models.Payment{
		ID:             utils.GeneratePaymentID(),
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		Amount:         reg.Amount,
		Currency:       reg.Currency,
		Provider:       s.Processor.Name(),
		Status:         models.StatusPending,
		CreatedAt:      s.now().UTC(),
	}

	intent, err := s.Processor.CreateIntent(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment: %w", err)
	}
	payment.ProviderRef = intent.Ref
	payment.ClientSecret = intent.ClientSecret

	if err := s.Store.SavePayment(ctx, payment); err != nil {
		if !errors.Is(err, storage.ErrPendingExists) {
			return nil, fmt.Errorf("failed to save payment: %w", err)
		}
		// a concurrent checkout won; drop our intent and return theirs
		s.cancelIntent(ctx, payment)
		return s.Store.GetPendingByRegistration(ctx, reg.ID)
	}

	if err := s.Holds.Hold(ctx, payment.ID, reg.ID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Checkout hold not set for %s, sweeper will expire it: %v", payment.ID, err))
	}

	s.Logger.LogPayment("CREATED", payment.ID, fmt.Sprintf("registration=%s amount=%.2f %s via %s", reg.ID, payment.Amount, payment.Currency, payment.Provider))
	return payment, nil
}

// Get returns a payment to its owner or an admin. Only the owner sees the
// client secret.
func (s *CheckoutService) Get(ctx context.Context, p *models.Principal, id string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != p.UserID {
		if !p.IsAdmin() {
			return nil, ErrForbidden
		}
		payment.ClientSecret = ""
	}
	return payment, nil
}

// Pay syncs a pending payment with the processor and applies the outcome.
func (s *CheckoutService) Pay(ctx context.Context, p *models.Principal, req models.PayRequest) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != p.UserID {
		return nil, ErrForbidden
	}
	if payment.Status != models.StatusPending {
		return payment, nil
	}

	reg, err := s.Registrations.GetRegistration(ctx, payment.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationPending {
		if _, err := s.close(ctx, payment.ID, models.StatusCancelled, "registration "+string(reg.Status)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: registration is %s", ErrNotPayable, reg.Status)
	}

	state, err := s.Processor.IntentStatus(ctx, payment.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment status: %w", err)
	}

	switch state.Status {
	case models.StatusSuccess:
		return s.MarkPaid(ctx, payment.ID)
	case models.StatusFailed:
		return s.MarkFailed(ctx, payment.ID, state.FailureReason)
	case models.StatusCancelled:
		return s.close(ctx, payment.ID, models.StatusCancelled, state.FailureReason)
	}
	return payment, nil
}

// MarkPaid settles a payment and confirms its registration. Repeated calls
// return the settled payment.
func (s *CheckoutService) MarkPaid(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.StatusSuccess {
		return payment, nil
	}

	changed, err := s.Store.TransitionPayment(ctx, payment.ID, models.StatusSuccess, "")
	if err != nil {
		return nil, err
	}
	if !changed {
		current, err := s.Store.GetPayment(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.StatusSuccess {
			return current, nil
		}
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Payment %s succeeded at the processor after it was %s", payment.ID, current.Status))
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentClosed, current.Status)
	}
	payment.Status = models.StatusSuccess
	payment.FailureReason = ""
	payment.UpdatedAt = s.now().UTC()
	s.Logger.LogPayment("SUCCEEDED", payment.ID, fmt.Sprintf("registration=%s", payment.RegistrationID))

	s.releaseHold(ctx, payment.ID)
	s.publishPayment(ctx, models.EventPaymentSucceeded, payment)

	confirmed, err := s.Registrations.UpdateStatus(ctx, payment.RegistrationID, models.RegistrationConfirmed, models.RegistrationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm registration: %w", err)
	}
	if !confirmed {
		// money was captured for a seat that is gone; refunds are handled by hand
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Registration %s was no longer pending when payment %s succeeded", payment.RegistrationID, payment.ID))
		return payment, nil
	}
	s.publishRegistration(ctx, models.EventRegistrationConfirmed, payment.RegistrationID)
	return payment, nil
}

// MarkFailed closes a pending payment as failed and cancels the registration.
func (s *CheckoutService) MarkFailed(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	return s.close(ctx, paymentID, models.StatusFailed, reason)
}

// Expire closes a payment whose checkout window ran out.
func (s *CheckoutService) Expire(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.close(ctx, paymentID, models.StatusCancelled, "checkout window expired")
}

func (s *CheckoutService) close(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.StatusPending {
		return payment, nil
	}

	changed, err := s.Store.TransitionPayment(ctx, payment.ID, status, reason)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.Store.GetPayment(ctx, payment.ID)
	}
	payment.Status = status
	payment.FailureReason = reason
	payment.UpdatedAt = s.now().UTC()
	s.Logger.LogPayment(strings.ToUpper(string(status)), payment.ID, reason)

	s.releaseHold(ctx, payment.ID)
	s.cancelIntent(ctx, payment)

	cancelled, err := s.Registrations.UpdateStatus(ctx, payment.RegistrationID, models.RegistrationCancelled, models.RegistrationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}
	if cancelled {
		s.publishRegistration(ctx, models.EventRegistrationCancelled, payment.RegistrationID)
	}
	return payment, nil
}

// CancelForRegistration closes the pending payment of a registration that was
// withdrawn, if there is one.
func (s *CheckoutService) CancelForRegistration(ctx context.Context, registrationID string) error {
	payment, err := s.Store.GetPendingByRegistration(ctx, registrationID)
	if errors.Is(err, storage.ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.close(ctx, payment.ID, models.StatusCancelled, "registration cancelled")
	return err
}

// OnHoldExpired is the callback for the checkout hold watcher.
func (s *CheckoutService) OnHoldExpired(ctx context.Context, paymentID string) {
	if _, err := s.Expire(ctx, paymentID); err != nil && !errors.Is(err, ErrPaymentNotFound) {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to expire payment %s: %v", paymentID, err))
	}
}

// Sweep expires pending payments older than the hold duration. It catches
// holds whose expiry notification was missed.
func (s *CheckoutService) Sweep(ctx context.Context) (int, error) {
	stale, err := s.Store.ListStalePending(ctx, s.now().UTC().Add(-s.HoldDuration), sweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, payment := range stale {
		if _, err := s.Expire(ctx, payment.ID); err != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Sweep failed for payment %s: %v", payment.ID, err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.Logger.Info("PAYMENT", fmt.Sprintf("Sweep expired %d stale payments", expired))
	}
	return expired, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *CheckoutService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.Logger.Error("PAYMENT", fmt.Sprintf("Sweep failed: %v", err))
			}
		}
	}
}

func (s *CheckoutService) releaseHold(ctx context.Context, paymentID string) {
	if err := s.Holds.Release(ctx, paymentID); err != nil {
		s.Logger.Warn("PAYMENT", err.Error())
	}
}

func (s *CheckoutService) cancelIntent(ctx context.Context, payment *models.Payment) {
	if payment.ProviderRef == "" {
		return
	}
	if err := s.Processor.CancelIntent(ctx, payment.ProviderRef); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Could not cancel intent %s: %v", payment.ProviderRef, err))
	}
}

func (s *CheckoutService) publishPayment(ctx context.Context, eventType string, payment *models.Payment) {
	event := models.PaymentEvent{
		Type:           eventType,
		PaymentID:      payment.ID,
		RegistrationID: payment.RegistrationID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Status:         payment.Status,
		Timestamp:      s.now().UTC(),
	}
	if err := s.Events.PublishPayment(ctx, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, payment.ID, err))
	}
}

func (s *CheckoutService) publishRegistration(ctx context.Context, eventType, registrationID string) {
	reg, err := s.Registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to load registration %s for %s: %v", registrationID, eventType, err))
		return
	}
	if err := s.Events.PublishRegistration(ctx, models.NewRegistrationEvent(eventType, reg)); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, reg.ID, err))
	}
}
