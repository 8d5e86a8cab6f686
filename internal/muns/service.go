package muns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/muns/db"
	"delified/internal/utils"
)

var (
	ErrMUNNotFound  = db.ErrMUNNotFound
	ErrForbidden    = errors.New("not the organizer of this mun")
	ErrFieldsLocked = errors.New("custom fields cannot change once registrations exist")
	ErrMUNCancelled = errors.New("mun is cancelled")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type DBLayer interface {
	CreateMUN(ctx context.Context, mun *models.MUN) error
	GetMUN(ctx context.Context, id string) (*models.MUN, error)
	UpdateMUN(ctx context.Context, mun *models.MUN) error
	UpdateStatus(ctx context.Context, id string, status models.MUNStatus, at time.Time) error
	ListMUNs(ctx context.Context, f db.ListFilter) ([]models.MUN, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]models.MUN, error)
	CountRegistrations(ctx context.Context, munID string) (int, error)
	RegistrationStats(ctx context.Context, muns []models.MUN) ([]models.MUNStats, error)
}

type ListFilter struct {
	Query        string
	UpcomingOnly bool
	Limit        int
	Offset       int
}

type MUNService struct {
	DB              DBLayer
	Logger          *logger.Logger
	DefaultCurrency string
	now             func() time.Time
}

func NewMUNService(d DBLayer, log *logger.Logger, currency string) *MUNService {
	return &MUNService{DB: d, Logger: log, DefaultCurrency: currency, now: time.Now}
}

// List returns published MUNs, soonest first.
func (s *MUNService) List(ctx context.Context, f ListFilter) ([]models.MUN, error) {
	filter := db.ListFilter{
		Query:  f.Query,
		Status: models.MUNStatusPublished,
		Limit:  clampLimit(f.Limit),
		Offset: f.Offset,
	}
	if f.UpcomingOnly {
		filter.After = startOfDay(s.now())
	}
	return s.DB.ListMUNs(ctx, filter)
}

// ListAll is the admin view over every status.
func (s *MUNService) ListAll(ctx context.Context, status models.MUNStatus, limit, offset int) ([]models.MUN, error) {
	return s.DB.ListMUNs(ctx, db.ListFilter{Status: status, Limit: clampLimit(limit), Offset: offset})
}

// Get hides drafts from everyone but their organizer and admins.
func (s *MUNService) Get(ctx context.Context, viewer *models.Principal, id string) (*models.MUN, error) {
	mun, err := s.DB.GetMUN(ctx, id)
	if err != nil {
		return nil, err
	}
	if mun.Status == models.MUNStatusDraft && !canManage(viewer, mun) {
		return nil, ErrMUNNotFound
	}
	return mun, nil
}

func (s *MUNService) Create(ctx context.Context, organizer *models.Principal, req models.CreateMUNRequest) (*models.MUN, error) {
	now := s.now().UTC()
	mun := &models.MUN{
		ID:           utils.NewID(),
		OrganizerID:  organizer.UserID,
		Name:         strings.TrimSpace(req.Name),
		Date:         req.Date.UTC(),
		Venue:        strings.TrimSpace(req.Venue),
		Fee:          req.Fee,
		Currency:     strings.ToLower(req.Currency),
		Capacity:     req.Capacity,
		Description:  strings.TrimSpace(req.Description),
		Status:       models.MUNStatusDraft,
		CustomFields: req.CustomFields,
		CreatedAt:    now,
	}
	if req.EndDate != nil {
		mun.EndDate = req.EndDate.UTC()
	}
	if mun.Currency == "" {
		mun.Currency = s.DefaultCurrency
	}
	if mun.CustomFields == nil {
		mun.CustomFields = []models.CustomField{}
	}
	if req.Publish {
		mun.Status = models.MUNStatusPublished
	}

	if err := validateMUN(mun); err != nil {
		return nil, err
	}
	if err := s.DB.CreateMUN(ctx, mun); err != nil {
		return nil, fmt.Errorf("failed to create mun: %w", err)
	}

	s.Logger.Info("MUN", fmt.Sprintf("MUN %s created by %s as %s", mun.ID, organizer.UserID, mun.Status))
	return mun, nil
}

func (s *MUNService) Update(ctx context.Context, p *models.Principal, id string, req models.UpdateMUNRequest) (*models.MUN, error) {
	mun, err := s.manageable(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if mun.Status == models.MUNStatusCancelled {
		return nil, ErrMUNCancelled
	}

	if req.Name != nil {
		mun.Name = strings.TrimSpace(*req.Name)
	}
	if req.Date != nil {
		mun.Date = req.Date.UTC()
	}
	if req.EndDate != nil {
		mun.EndDate = req.EndDate.UTC()
	}
	if req.Venue != nil {
		mun.Venue = strings.TrimSpace(*req.Venue)
	}
	if req.Fee != nil {
		mun.Fee = *req.Fee
	}
	if req.Capacity != nil {
		mun.Capacity = *req.Capacity
	}
	if req.Description != nil {
		mun.Description = strings.TrimSpace(*req.Description)
	}
	if req.CustomFields != nil {
		n, err := s.DB.CountRegistrations(ctx, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, ErrFieldsLocked
		}
		mun.CustomFields = *req.CustomFields
	}

	if err := validateMUN(mun); err != nil {
		return nil, err
	}
	mun.UpdatedAt = s.now().UTC()
	if err := s.DB.UpdateMUN(ctx, mun); err != nil {
		return nil, fmt.Errorf("failed to update mun %s: %w", id, err)
	}

	s.Logger.Info("MUN", fmt.Sprintf("MUN %s updated by %s", id, p.UserID))
	return mun, nil
}

func (s *MUNService) Publish(ctx context.Context, p *models.Principal, id string) (*models.MUN, error) {
	mun, err := s.manageable(ctx, p, id)
	if err != nil {
		return nil, err
	}
	switch mun.Status {
	case models.MUNStatusCancelled:
		return nil, ErrMUNCancelled
	case models.MUNStatusPublished:
		return mun, nil
	}
	return s.setStatus(ctx, mun, models.MUNStatusPublished)
}

// Cancel is idempotent.
func (s *MUNService) Cancel(ctx context.Context, p *models.Principal, id string) (*models.MUN, error) {
	mun, err := s.manageable(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if mun.Status == models.MUNStatusCancelled {
		return mun, nil
	}
	return s.setStatus(ctx, mun, models.MUNStatusCancelled)
}

// SetStatus is the admin override; any transition is allowed.
func (s *MUNService) SetStatus(ctx context.Context, id string, status models.MUNStatus) (*models.MUN, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidMUN, status)
	}
	mun, err := s.DB.GetMUN(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, mun, status)
}

func (s *MUNService) setStatus(ctx context.Context, mun *models.MUN, status models.MUNStatus) (*models.MUN, error) {
	at := s.now().UTC()
	if err := s.DB.UpdateStatus(ctx, mun.ID, status, at); err != nil {
		return nil, fmt.Errorf("failed to set mun %s %s: %w", mun.ID, status, err)
	}
	s.Logger.Info("MUN", fmt.Sprintf("MUN %s: %s → %s", mun.ID, mun.Status, status))
	mun.Status = status
	mun.UpdatedAt = at
	return mun, nil
}

// Dashboard lists the organizer's MUNs with registration counts and revenue.
func (s *MUNService) Dashboard(ctx context.Context, p *models.Principal) ([]models.MUNStats, error) {
	muns, err := s.DB.ListByOrganizer(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizer muns: %w", err)
	}
	return s.DB.RegistrationStats(ctx, muns)
}

func (s *MUNService) manageable(ctx context.Context, p *models.Principal, id string) (*models.MUN, error) {
	mun, err := s.DB.GetMUN(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, mun) {
		return nil, ErrForbidden
	}
	return mun, nil
}

func canManage(p *models.Principal, mun *models.MUN) bool {
	if p == nil {
		return false
	}
	return p.IsAdmin() || p.UserID == mun.OrganizerID
}

func validateMUN(mun *models.MUN) error {
	switch {
	case mun.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidMUN)
	case mun.Venue == "":
		return fmt.Errorf("%w: venue is required", ErrInvalidMUN)
	case mun.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidMUN)
	case !mun.EndDate.IsZero() && mun.EndDate.Before(mun.Date):
		return fmt.Errorf("%w: end_date is before date", ErrInvalidMUN)
	case mun.Fee < 0:
		return fmt.Errorf("%w: fee must not be negative", ErrInvalidMUN)
	case mun.Capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidMUN)
	}
	return ValidateFields(mun.CustomFields)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
