package admin

import (
	"context"
	"errors"
	"fmt"

	"delified/internal/logger"
	"delified/internal/models"
	mundb "delified/internal/muns/db"
	userdb "delified/internal/users/db"
)

var (
	ErrUserNotFound = userdb.ErrUserNotFound
	ErrMUNNotFound  = mundb.ErrMUNNotFound

	ErrInvalidRole  = errors.New("invalid role")
	ErrSelfDemotion = errors.New("admins cannot remove their own admin role")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type StatsDB interface {
	MUNsByStatus(ctx context.Context) (map[models.MUNStatus]int, error)
	RegistrationsByStatus(ctx context.Context) (map[models.RegistrationStatus]int, error)
	CheckedInCount(ctx context.Context) (int, error)
	ConfirmedIncome(ctx context.Context) (float64, error)
	CountPosts(ctx context.Context) (int, error)
	CountComments(ctx context.Context) (int, error)
	DailyRegistrations(ctx context.Context, munID string) ([]models.DailyRegistrations, error)
}

type UserStore interface {
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type MUNStore interface {
	GetMUN(ctx context.Context, id string) (*models.MUN, error)
	RegistrationStats(ctx context.Context, muns []models.MUN) ([]models.MUNStats, error)
}

// MUNManager is the admin side of the MUN service.
type MUNManager interface {
	ListAll(ctx context.Context, status models.MUNStatus, limit, offset int) ([]models.MUN, error)
	SetStatus(ctx context.Context, id string, status models.MUNStatus) (*models.MUN, error)
}

type RegistrationLister interface {
	ListByMUN(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error)
}

type Service struct {
	DB            StatsDB
	Users         UserStore
	MUNDB         MUNStore
	MUNs          MUNManager
	Registrations RegistrationLister
	Logger        *logger.Logger
}

func NewService(stats StatsDB, users UserStore, munDB MUNStore, muns MUNManager, regs RegistrationLister, log *logger.Logger) *Service {
	return &Service{DB: stats, Users: users, MUNDB: munDB, MUNs: muns, Registrations: regs, Logger: log}
}

// Stats aggregates the headline numbers for the dashboard.
func (s *Service) Stats(ctx context.Context) (*models.AdminStats, error) {
	var (
		stats models.AdminStats
		err   error
	)
	if stats.Users, err = s.Users.CountUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if stats.MUNs, err = s.DB.MUNsByStatus(ctx); err != nil {
		return nil, fmt.Errorf("count muns: %w", err)
	}
	if stats.Registrations, err = s.DB.RegistrationsByStatus(ctx); err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	if stats.CheckedIn, err = s.DB.CheckedInCount(ctx); err != nil {
		return nil, fmt.Errorf("count check-ins: %w", err)
	}
	if stats.ConfirmedIncome, err = s.DB.ConfirmedIncome(ctx); err != nil {
		return nil, fmt.Errorf("sum income: %w", err)
	}
	if stats.Posts, err = s.DB.CountPosts(ctx); err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	if stats.Comments, err = s.DB.CountComments(ctx); err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	return &stats, nil
}

func clampPage(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if offset < 0 {
		offset = 0
	}
	return s.Users.ListUsers(ctx, clampPage(limit), offset)
}

// SetUserRole promotes or demotes a user. An admin cannot demote themselves,
// which keeps at least one admin in place.
func (s *Service) SetUserRole(ctx context.Context, actor *models.Principal, id string, role models.Role) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if actor.UserID == id && role != models.RoleAdmin {
		return nil, ErrSelfDemotion
	}
	if err := s.Users.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.Logger.LogSecurity("ROLE_CHANGED", fmt.Sprintf("%s set %s to %s", actor.UserID, id, role))
	return s.Users.GetUserByID(ctx, id)
}

func (s *Service) ListMUNs(ctx context.Context, status models.MUNStatus, limit, offset int) ([]models.MUN, error) {
	return s.MUNs.ListAll(ctx, status, clampPage(limit), offset)
}

func (s *Service) SetMUNStatus(ctx context.Context, actor *models.Principal, id string, status models.MUNStatus) (*models.MUN, error) {
	mun, err := s.MUNs.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("ADMIN", fmt.Sprintf("%s set mun %s to %s", actor.UserID, id, status))
	return mun, nil
}

func (s *Service) ListRegistrations(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error) {
	if _, err := s.MUNDB.GetMUN(ctx, munID); err != nil {
		return nil, err
	}
	return s.Registrations.ListByMUN(ctx, munID, status)
}

// MUNAnalytics reports a MUN's totals and its registrations per day.
func (s *Service) MUNAnalytics(ctx context.Context, munID string) (*models.MUNAnalytics, error) {
	mun, err := s.MUNDB.GetMUN(ctx, munID)
	if err != nil {
		return nil, err
	}
	stats, err := s.MUNDB.RegistrationStats(ctx, []models.MUN{*mun})
	if err != nil {
		return nil, err
	}
	daily, err := s.DB.DailyRegistrations(ctx, munID)
	if err != nil {
		return nil, err
	}
	return &models.MUNAnalytics{MUNID: munID, Daily: daily, Stats: stats[0]}, nil
}
