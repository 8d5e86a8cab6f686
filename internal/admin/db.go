package admin

import (
	"context"

	"delified/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB runs the cross-table aggregate queries behind the admin dashboard.
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

type statusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

func (db *DB) countByStatus(ctx context.Context, table string) (map[string]int, error) {
	var rows []statusCount
	err := db.bun.NewSelect().
		TableExpr(table).
		ColumnExpr("status, COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// MUNsByStatus counts conferences per lifecycle status
func (db *DB) MUNsByStatus(ctx context.Context) (map[models.MUNStatus]int, error) {
	counts, err := db.countByStatus(ctx, "muns")
	if err != nil {
		return nil, err
	}
	out := make(map[models.MUNStatus]int, len(counts))
	for status, n := range counts {
		out[models.MUNStatus(status)] = n
	}
	return out, nil
}

func (db *DB) RegistrationsByStatus(ctx context.Context) (map[models.RegistrationStatus]int, error) {
	counts, err := db.countByStatus(ctx, "registrations")
	if err != nil {
		return nil, err
	}
	out := make(map[models.RegistrationStatus]int, len(counts))
	for status, n := range counts {
		out[models.RegistrationStatus(status)] = n
	}
	return out, nil
}

func (db *DB) CheckedInCount(ctx context.Context) (int, error) {
	return db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("checked_in = ?", true).
		Count(ctx)
}

// ConfirmedIncome sums every settled payment.
func (db *DB) ConfirmedIncome(ctx context.Context) (float64, error) {
	var total float64
	err := db.bun.NewSelect().
		Model((*models.Payment)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0.0)").
		Where("status = ?", models.StatusSuccess).
		Scan(ctx, &total)
	return total, err
}

func (db *DB) CountPosts(ctx context.Context) (int, error) {
	return db.bun.NewSelect().Model((*models.Post)(nil)).Count(ctx)
}

func (db *DB) CountComments(ctx context.Context) (int, error) {
	return db.bun.NewSelect().Model((*models.Comment)(nil)).Count(ctx)
}

// DailyRegistrations buckets a MUN's registrations by UTC day, oldest first.
func (db *DB) DailyRegistrations(ctx context.Context, munID string) ([]models.DailyRegistrations, error) {
	day := "substr(created_at, 1, 10)"
	if db.bun.Dialect().Name() == dialect.PG {
		day = "TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}

	daily := []models.DailyRegistrations{}
	err := db.bun.NewSelect().
		TableExpr("registrations").
		ColumnExpr(day+" AS day").
		ColumnExpr("COUNT(*) AS registrations").
		ColumnExpr("SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS confirmed", models.RegistrationConfirmed).
		ColumnExpr("COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0.0 END), 0.0) AS revenue", models.RegistrationConfirmed).
		Where("mun_id = ?", munID).
		GroupExpr("day").
		OrderExpr("day ASC").
		Scan(ctx, &daily)
	return daily, err
}
