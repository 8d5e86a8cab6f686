package storage

import (
	"context"
	"time"

	"delified/internal/database"
	"delified/internal/models"

	"github.com/uptrace/bun"
)

type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// SavePayment inserts a new payment; a second pending payment for the same
// registration fails with ErrPendingExists.
func (s *BunStore) SavePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.NewInsert().Model(payment).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrPendingExists
	}
	return err
}

func (s *BunStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.getWhere(ctx, "id = ?", id)
}

func (s *BunStore) GetPaymentByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	return s.getWhere(ctx, "provider_ref = ?", ref)
}

func (s *BunStore) GetPendingByRegistration(ctx context.Context, registrationID string) (*models.Payment, error) {
	return s.getWhere(ctx, "registration_id = ? AND status = ?", registrationID, models.StatusPending)
}

func (s *BunStore) getWhere(ctx context.Context, where string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.NewSelect().
		Model(&payment).
		Where(where, args...).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *BunStore) ListByRegistration(ctx context.Context, registrationID string) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.NewSelect().
		Model(&payments).
		Where("registration_id = ?", registrationID).
		Order("created_at DESC").
		Scan(ctx)
	return payments, err
}

func (s *BunStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.NewSelect().
		Model(&payments).
		Where("status = ?", models.StatusPending).
		Where("created_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	return payments, err
}

func (s *BunStore) TransitionPayment(ctx context.Context, id string, status models.PaymentStatus, reason string) (bool, error) {
	q := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.StatusPending)
	if reason != "" {
		q = q.Set("failure_reason = ?", reason)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
