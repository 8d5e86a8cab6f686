package main

import (
	"context"
	"fmt"
	"time"

	"delified/internal/auth"
	"delified/internal/models"

	"github.com/uptrace/bun"
)

const demoPassword = "delified-demo"

// seedData inserts a small demo dataset. Rows that already exist are left alone,
// so running it twice is harmless.
func seedData(ctx context.Context, db *bun.DB, currency string) error {
	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return fmt.Errorf("failed to hash demo password: %w", err)
	}
	now := time.Now().UTC()

	users := []models.User{
		{ID: "user-organizer", Email: "organizer@delified.io", Name: "Olivia Organizer", Institution: "Delified University", PasswordHash: hash, Role: models.RoleUser, CreatedAt: now},
		{ID: "user-delegate", Email: "delegate@delified.io", Name: "Daniel Delegate", Institution: "Model High School", PasswordHash: hash, Role: models.RoleUser, CreatedAt: now},
	}

	muns := []models.MUN{
		{
			ID:          "mun-spring",
			OrganizerID: "user-organizer",
			Name:        "Spring Model UN",
			Date:        now.AddDate(0, 1, 0),
			EndDate:     now.AddDate(0, 1, 2),
			Venue:       "Main Auditorium",
			Fee:         40,
			Currency:    currency,
			Capacity:    200,
			Description: "Three days of committee sessions.",
			Status:      models.MUNStatusPublished,
			CustomFields: []models.CustomField{
				{Key: "committee", Label: "Preferred committee", Type: models.FieldSelect, Required: true, Options: []string{"UNSC", "UNHRC", "WHO"}},
			},
			CreatedAt: now,
		},
		{
			ID:           "mun-workshop",
			OrganizerID:  "user-organizer",
			Name:         "First-Timers Workshop",
			Date:         now.AddDate(0, 0, 14),
			Venue:        "Room 101",
			Currency:     currency,
			Status:       models.MUNStatusPublished,
			CustomFields: []models.CustomField{},
			CreatedAt:    now,
		},
	}

	post := models.Post{
		ID:         "post-welcome",
		AuthorID:   "user-organizer",
		AuthorName: "Olivia Organizer",
		Content:    "Registration for Spring Model UN is open!",
		CreatedAt:  now,
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&users).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed users: %w", err)
		}
		if _, err := tx.NewInsert().Model(&muns).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed muns: %w", err)
		}
		if _, err := tx.NewInsert().Model(&post).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed posts: %w", err)
		}
		return nil
	})
}
