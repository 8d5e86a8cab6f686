package db

import (
	"context"
	"errors"
	"fmt"

	"delified/internal/database"
	"delified/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type DB struct {
	Bun *bun.DB
}

// CreateUser → insert new user; a duplicate email maps to ErrEmailTaken
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail expects an already normalised (lower-cased, trimmed) email.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers → newest first
func (d *DB) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	users := []models.User{}
	err := d.Bun.NewSelect().
		Model(&users).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	return users, err
}

func (d *DB) UpdateRole(ctx context.Context, id string, role models.Role) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("role = ?", role).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update role of %s: %w", id, ErrUserNotFound)
	}
	return nil
}

func (d *DB) CountUsers(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.User)(nil)).Count(ctx)
}
