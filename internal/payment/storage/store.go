package storage

import (
	"context"
	"errors"
	"time"

	"delified/internal/models"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPendingExists   = errors.New("registration already has a pending payment")
)

type Store interface {
	SavePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, ref string) (*models.Payment, error)
	GetPendingByRegistration(ctx context.Context, registrationID string) (*models.Payment, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]models.Payment, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
	// TransitionPayment moves a pending payment to status and reports whether it changed.
	TransitionPayment(ctx context.Context, id string, status models.PaymentStatus, reason string) (bool, error)
}
