package database

import (
	"context"
	"fmt"

	"delified/internal/models"

	"github.com/uptrace/bun"
)

var tables = []interface{}{
	(*models.User)(nil),
	(*models.MUN)(nil),
	(*models.Registration)(nil),
	(*models.Payment)(nil),
	(*models.Post)(nil),
	(*models.PostLike)(nil),
	(*models.Comment)(nil),
}

var indexes = []struct {
	model   interface{}
	name    string
	columns []string
}{
	{(*models.MUN)(nil), "idx_muns_status_date", []string{"status", "date"}},
	{(*models.Registration)(nil), "idx_registrations_mun", []string{"mun_id", "status"}},
	{(*models.Registration)(nil), "idx_registrations_user", []string{"user_id"}},
	{(*models.Payment)(nil), "idx_payments_registration", []string{"registration_id", "status"}},
	{(*models.Payment)(nil), "idx_payments_provider_ref", []string{"provider_ref"}},
	{(*models.Comment)(nil), "idx_comments_post", []string{"post_id", "created_at"}},
}

var partialIndexes = map[string]string{
	// one live registration per delegate per conference
	"uq_registrations_active": `CREATE UNIQUE INDEX IF NOT EXISTS uq_registrations_active
	ON registrations (mun_id, user_id) WHERE status IN ('pending', 'confirmed')`,
	// at most one open checkout per registration
	"uq_payments_pending": `CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_pending
	ON payments (registration_id) WHERE status = 'pending'`,
}

// CreateSchema builds the tables straight from the models. It backs the
// sqlite driver and tests; postgres deployments use the SQL migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	for name, stmt := range partialIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}
