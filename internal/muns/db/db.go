package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"delified/internal/database"
	"delified/internal/models"

	"github.com/uptrace/bun"
)

var ErrMUNNotFound = errors.New("mun not found")

type DB struct {
	Bun *bun.DB
}

// ListFilter narrows the public listing. Zero values mean "no filter".
type ListFilter struct {
	Query  string
	After  time.Time
	Status models.MUNStatus
	Limit  int
	Offset int
}

func (d *DB) CreateMUN(ctx context.Context, mun *models.MUN) error {
	_, err := d.Bun.NewInsert().Model(mun).Exec(ctx)
	return err
}

func (d *DB) GetMUN(ctx context.Context, id string) (*models.MUN, error) {
	var mun models.MUN
	err := d.Bun.NewSelect().
		Model(&mun).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrMUNNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mun, nil
}

// UpdateMUN writes every column of mun back.
func (d *DB) UpdateMUN(ctx context.Context, mun *models.MUN) error {
	res, err := d.Bun.NewUpdate().
		Model(mun).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMUNNotFound
	}
	return nil
}

func (d *DB) UpdateStatus(ctx context.Context, id string, status models.MUNStatus, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.MUN)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMUNNotFound
	}
	return nil
}

// ListMUNs orders by conference date, soonest first.
func (d *DB) ListMUNs(ctx context.Context, f ListFilter) ([]models.MUN, error) {
	muns := []models.MUN{}
	q := d.Bun.NewSelect().Model(&muns)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.After.IsZero() {
		q = q.Where("date >= ?", f.After)
	}
	if query := strings.TrimSpace(f.Query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(name) LIKE ?", pattern).WhereOr("LOWER(venue) LIKE ?", pattern)
		})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	err := q.Offset(f.Offset).
		Order("date ASC", "id ASC").
		Scan(ctx)
	return muns, err
}

func (d *DB) ListByOrganizer(ctx context.Context, organizerID string) ([]models.MUN, error) {
	muns := []models.MUN{}
	err := d.Bun.NewSelect().
		Model(&muns).
		Where("organizer_id = ?", organizerID).
		Order("date ASC").
		Scan(ctx)
	return muns, err
}

// CountRegistrations counts every registration of the MUN, cancelled ones included.
func (d *DB) CountRegistrations(ctx context.Context, munID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("mun_id = ?", munID).
		Count(ctx)
}

type statusRow struct {
	MUNID     string                    `bun:"mun_id"`
	Status    models.RegistrationStatus `bun:"status"`
	Count     int                       `bun:"count"`
	CheckedIn int                       `bun:"checked_in"`
	Amount    float64                   `bun:"amount"`
}

// RegistrationStats aggregates registrations per MUN for the dashboard.
func (d *DB) RegistrationStats(ctx context.Context, muns []models.MUN) ([]models.MUNStats, error) {
	stats := make([]models.MUNStats, len(muns))
	if len(muns) == 0 {
		return stats, nil
	}

	index := make(map[string]*models.MUNStats, len(muns))
	ids := make([]string, len(muns))
	for i := range muns {
		stats[i].MUN = &muns[i]
		index[muns[i].ID] = &stats[i]
		ids[i] = muns[i].ID
	}

	var rows []statusRow
	err := d.Bun.NewSelect().
		TableExpr("registrations").
		ColumnExpr("mun_id, status, COUNT(*) AS count").
		ColumnExpr("SUM(CASE WHEN checked_in THEN 1 ELSE 0 END) AS checked_in").
		ColumnExpr("COALESCE(SUM(amount), 0.0) AS amount").
		Where("mun_id IN (?)", bun.In(ids)).
		GroupExpr("mun_id, status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		s := index[row.MUNID]
		switch row.Status {
		case models.RegistrationPending:
			s.Pending = row.Count
		case models.RegistrationConfirmed:
			s.Confirmed = row.Count
			s.Revenue = row.Amount
		case models.RegistrationCancelled:
			s.Cancelled = row.Count
		}
		s.CheckedIn += row.CheckedIn
	}
	return stats, nil
}
