package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delified/internal/badge"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/muns"
	"delified/internal/registrations/db"
	"delified/internal/utils"
)

var (
	ErrRegistrationNotFound = db.ErrRegistrationNotFound
	ErrAlreadyRegistered    = db.ErrAlreadyRegistered
	ErrMUNFull              = db.ErrMUNFull
	ErrMUNNotFound          = muns.ErrMUNNotFound
	ErrInvalidAnswers       = muns.ErrInvalidAnswers
	ErrInvalidBadge         = badge.ErrInvalidBadge

	ErrRegistrationClosed = errors.New("registration for this mun is closed")
	ErrInProgress         = errors.New("a registration for this mun is already in progress")
	ErrForbidden          = errors.New("not allowed to access this registration")
	ErrNotCancellable     = errors.New("registration cannot be cancelled")
	ErrNotConfirmed       = errors.New("registration is not confirmed")
	ErrAlreadyCheckedIn   = errors.New("delegate already checked in")
)

type DBLayer interface {
	CreateRegistration(ctx context.Context, reg *models.Registration, capacity int) error
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]models.Registration, error)
	ListByMUN(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error)
	UpdateStatus(ctx context.Context, id string, to models.RegistrationStatus, from ...models.RegistrationStatus) (bool, error)
	MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error)
}

type MUNReader interface {
	GetMUN(ctx context.Context, id string) (*models.MUN, error)
}

type RegistrationLock interface {
	LockRegistration(ctx context.Context, munID, userID, token string) (bool, error)
	UnlockRegistration(ctx context.Context, munID, userID, token string) error
}

type EventPublisher interface {
	PublishRegistration(ctx context.Context, event models.RegistrationEvent) error
}

// PaymentCanceller closes whatever checkout is still open for a registration.
type PaymentCanceller interface {
	CancelForRegistration(ctx context.Context, registrationID string) error
}

type BadgeCodec interface {
	Decrypt(token string) (badge.Payload, error)
	PNG(p badge.Payload) ([]byte, error)
}

type RegistrationService struct {
	DB       DBLayer
	MUNs     MUNReader
	Lock     RegistrationLock
	Events   EventPublisher
	Badges   BadgeCodec
	Logger   *logger.Logger
	Payments PaymentCanceller // optional
	now      func() time.Time
}

func NewRegistrationService(d DBLayer, munReader MUNReader, lock RegistrationLock, events EventPublisher, badges BadgeCodec, log *logger.Logger) *RegistrationService {
	return &RegistrationService{
		DB:     d,
		MUNs:   munReader,
		Lock:   lock,
		Events: events,
		Badges: badges,
		Logger: log,
		now:    time.Now,
	}
}

// Register signs the caller up for a published, not yet started MUN. Free
// MUNs confirm immediately; paid ones stay pending until checkout succeeds.
func (s *RegistrationService) Register(ctx context.Context, p *models.Principal, req models.RegisterRequest) (*models.Registration, error) {
	mun, err := s.MUNs.GetMUN(ctx, req.MUNID)
	if err != nil {
		return nil, err
	}
	switch mun.Status {
	case models.MUNStatusDraft:
		return nil, ErrMUNNotFound
	case models.MUNStatusCancelled:
		return nil, fmt.Errorf("%w: mun was cancelled", ErrRegistrationClosed)
	}
	if !s.now().Before(mun.Date) {
		return nil, fmt.Errorf("%w: mun has started", ErrRegistrationClosed)
	}

	answers, err := muns.ValidateAnswers(mun.CustomFields, req.Answers)
	if err != nil {
		return nil, err
	}

	token := utils.NewID()
	locked, err := s.Lock.LockRegistration(ctx, mun.ID, p.UserID, token)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrInProgress
	}
	defer func() {
		if err := s.Lock.UnlockRegistration(context.WithoutCancel(ctx), mun.ID, p.UserID, token); err != nil {
			s.Logger.Warn("REGISTRATION", err.Error())
		}
	}()

	reg := &models.Registration{
		ID:        utils.NewID(),
		MUNID:     mun.ID,
		UserID:    p.UserID,
		Answers:   answers,
		Status:    models.RegistrationPending,
		Amount:    mun.Fee,
		Currency:  mun.Currency,
		CreatedAt: s.now().UTC(),
	}
	if mun.IsFree() {
		reg.Status = models.RegistrationConfirmed
	}

	if err := s.DB.CreateRegistration(ctx, reg, mun.Capacity); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) || errors.Is(err, ErrMUNFull) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	s.Logger.LogRegistration("CREATED", reg.ID, fmt.Sprintf("mun=%s user=%s status=%s", mun.ID, p.UserID, reg.Status))
	s.publish(ctx, models.EventRegistrationCreated, reg)
	if reg.Status == models.RegistrationConfirmed {
		s.publish(ctx, models.EventRegistrationConfirmed, reg)
	}
	return reg, nil
}

// Get is allowed for the delegate, the MUN organizer and admins.
func (s *RegistrationService) Get(ctx context.Context, p *models.Principal, id string) (*models.Registration, error) {
	reg, err := s.DB.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID == p.UserID || p.IsAdmin() {
		return reg, nil
	}

	mun, err := s.MUNs.GetMUN(ctx, reg.MUNID)
	if err != nil {
		return nil, err
	}
	if mun.OrganizerID != p.UserID {
		return nil, ErrForbidden
	}
	return reg, nil
}

func (s *RegistrationService) ListMine(ctx context.Context, p *models.Principal) ([]models.Registration, error) {
	return s.DB.ListByUser(ctx, p.UserID)
}

// ListByMUN is the organizer view of a MUN's delegates.
func (s *RegistrationService) ListByMUN(ctx context.Context, p *models.Principal, munID string, status models.RegistrationStatus) ([]models.Registration, error) {
	if err := s.CanWatch(ctx, p, munID); err != nil {
		return nil, err
	}
	return s.DB.ListByMUN(ctx, munID, status)
}

// CanWatch reports whether p may see all registrations of munID.
func (s *RegistrationService) CanWatch(ctx context.Context, p *models.Principal, munID string) error {
	mun, err := s.MUNs.GetMUN(ctx, munID)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && mun.OrganizerID != p.UserID {
		return ErrForbidden
	}
	return nil
}

// Cancel withdraws the caller's registration. Checked in delegates cannot cancel.
func (s *RegistrationService) Cancel(ctx context.Context, p *models.Principal, id string) (*models.Registration, error) {
	reg, err := s.DB.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != p.UserID && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if reg.CheckedIn {
		return nil, fmt.Errorf("%w: already checked in", ErrNotCancellable)
	}

	changed, err := s.DB.UpdateStatus(ctx, id, models.RegistrationCancelled, models.RegistrationPending, models.RegistrationConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel registration %s: %w", id, err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancellable, reg.Status)
	}

	if reg.Status == models.RegistrationPending && s.Payments != nil {
		if err := s.Payments.CancelForRegistration(ctx, reg.ID); err != nil {
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to close checkout for %s: %v", reg.ID, err))
		}
	}

	reg.Status = models.RegistrationCancelled
	s.Logger.LogRegistration("CANCELLED", reg.ID, fmt.Sprintf("by %s", p.UserID))
	s.publish(ctx, models.EventRegistrationCancelled, reg)
	return reg, nil
}

// Badge renders the delegate's QR badge. Only confirmed registrations get one.
func (s *RegistrationService) Badge(ctx context.Context, p *models.Principal, id string) ([]byte, error) {
	reg, err := s.DB.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != p.UserID && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if reg.Status != models.RegistrationConfirmed {
		return nil, ErrNotConfirmed
	}

	return s.Badges.PNG(badge.Payload{
		RegistrationID: reg.ID,
		MUNID:          reg.MUNID,
		UserID:         reg.UserID,
		IssuedAt:       s.now().UTC(),
	})
}

// CheckIn scans an encrypted badge at the venue. Organizer or admin only.
func (s *RegistrationService) CheckIn(ctx context.Context, p *models.Principal, token string) (*models.Registration, error) {
	payload, err := s.Badges.Decrypt(token)
	if err != nil {
		s.Logger.LogSecurity("BADGE_REJECTED", fmt.Sprintf("check-in by %s: %v", p.UserID, err))
		return nil, err
	}

	reg, err := s.DB.GetRegistration(ctx, payload.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.MUNID != payload.MUNID || reg.UserID != payload.UserID {
		return nil, fmt.Errorf("%w: payload does not match registration", ErrInvalidBadge)
	}
	if err := s.CanWatch(ctx, p, reg.MUNID); err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationConfirmed {
		return nil, ErrNotConfirmed
	}

	at := s.now().UTC()
	marked, err := s.DB.MarkCheckedIn(ctx, reg.ID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to check in %s: %w", reg.ID, err)
	}
	if !marked {
		return nil, ErrAlreadyCheckedIn
	}

	reg.CheckedIn = true
	reg.CheckedInAt = at
	s.Logger.LogRegistration("CHECKED_IN", reg.ID, fmt.Sprintf("by %s", p.UserID))
	s.publish(ctx, models.EventRegistrationCheckedIn, reg)
	return reg, nil
}

// publish is best effort; the registration is already stored.
func (s *RegistrationService) publish(ctx context.Context, eventType string, reg *models.Registration) {
	if err := s.Events.PublishRegistration(ctx, models.NewRegistrationEvent(eventType, reg)); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, reg.ID, err))
	}
}
