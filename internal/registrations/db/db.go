package db

import (
	"context"
	"errors"
	"time"

	"delified/internal/database"
	"delified/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyRegistered    = errors.New("already registered for this mun")
	ErrMUNFull              = errors.New("mun is at capacity")
)

var activeStatuses = []models.RegistrationStatus{models.RegistrationPending, models.RegistrationConfirmed}

type DB struct {
	Bun *bun.DB
}

// CreateRegistration inserts reg unless the user already holds an active
// registration for the MUN or the MUN is full. capacity <= 0 means unlimited.
func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration, capacity int) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if tx.Dialect().Name() == dialect.PG {
			// serialise capacity checks per MUN
			if err := tx.NewSelect().
				Model((*models.MUN)(nil)).
				Column("id").
				Where("id = ?", reg.MUNID).
				For("UPDATE").
				Scan(ctx, new(string)); err != nil {
				return err
			}
		}

		mine, err := tx.NewSelect().
			Model((*models.Registration)(nil)).
			Where("mun_id = ? AND user_id = ?", reg.MUNID, reg.UserID).
			Where("status IN (?)", bun.In(activeStatuses)).
			Count(ctx)
		if err != nil {
			return err
		}
		if mine > 0 {
			return ErrAlreadyRegistered
		}

		if capacity > 0 {
			taken, err := tx.NewSelect().
				Model((*models.Registration)(nil)).
				Where("mun_id = ?", reg.MUNID).
				Where("status IN (?)", bun.In(activeStatuses)).
				Count(ctx)
			if err != nil {
				return err
			}
			if taken >= capacity {
				return ErrMUNFull
			}
		}

		_, err = tx.NewInsert().Model(reg).Exec(ctx)
		return err
	})
	if database.IsUniqueViolation(err) {
		return ErrAlreadyRegistered
	}
	return err
}

func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Registration, error) {
	regs := []models.Registration{}
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return regs, err
}

// ListByMUN returns every registration of the MUN, optionally only one status.
func (d *DB) ListByMUN(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error) {
	regs := []models.Registration{}
	q := d.Bun.NewSelect().
		Model(&regs).
		Where("mun_id = ?", munID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at ASC").Scan(ctx)
	return regs, err
}

// UpdateStatus moves the registration to `to` if its current status is one
// of `from`. It reports whether a row changed.
func (d *DB) UpdateStatus(ctx context.Context, id string, to models.RegistrationStatus, from ...models.RegistrationStatus) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN (?)", bun.In(from))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCheckedIn flags a confirmed registration once; a second call reports false.
func (d *DB) MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RegistrationConfirmed).
		Where("checked_in = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
