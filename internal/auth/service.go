package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delified/internal/logger"
	"delified/internal/models"
	userdb "delified/internal/users/db"
	"delified/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = userdb.ErrEmailTaken
	ErrNotAdmin           = errors.New("account is not an administrator")
	ErrUnauthenticated    = errors.New("not authenticated")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
}

type Service struct {
	Users    UserStore
	Sessions SessionStore
	Tokens   *TokenManager
	Log      *logger.Logger
	now      func() time.Time
}

func NewService(users UserStore, sessions SessionStore, tokens *TokenManager, log *logger.Logger) *Service {
	return &Service{Users: users, Sessions: sessions, Tokens: tokens, Log: log, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a regular user account.
func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           utils.NewID(),
		Email:        normalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Institution:  strings.TrimSpace(req.Institution),
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, userdb.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Log.Info("AUTH", fmt.Sprintf("User %s signed up", user.ID))
	return user, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password return the same error.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	user, err := s.verifyCredentials(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// AdminLogin is Login restricted to administrator accounts.
func (s *Service) AdminLogin(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	user, err := s.verifyCredentials(ctx, req)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		s.Log.LogSecurity("ADMIN_LOGIN_DENIED", fmt.Sprintf("user %s is not an admin", user.ID))
		return nil, ErrNotAdmin
	}
	return s.openSession(ctx, user)
}

func (s *Service) verifyCredentials(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	user, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, userdb.ErrUserNotFound) {
		s.Log.LogSecurity("LOGIN_FAILED", fmt.Sprintf("unknown email %s", email))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to check password: %w", err)
	}
	if !ok {
		s.Log.LogSecurity("LOGIN_FAILED", fmt.Sprintf("wrong password for user %s", user.ID))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user *models.User) (*models.Session, error) {
	token, claims, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, claims.ID, user.ID, s.Tokens.TTL()); err != nil {
		return nil, err
	}

	s.Log.Info("AUTH", fmt.Sprintf("Session opened for user %s (%s)", user.ID, user.Role))
	return &models.Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Logout revokes the session behind token. Calling it with an expired,
// revoked or garbage token is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.Tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.Sessions.Delete(ctx, claims.ID); err != nil {
		return err
	}
	s.Log.Info("AUTH", fmt.Sprintf("Session closed for user %s", claims.Subject))
	return nil
}

// Verify implements Verifier for locally issued tokens. The role comes from
// the user record, not the token, so a role change applies on the next request.
func (s *Service) Verify(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := s.Tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	live, err := s.Sessions.Exists(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}

	user, err := s.Users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, userdb.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	principal := claims.Principal()
	if principal.Role != user.Role {
		s.Log.LogSecurity("ROLE_REFRESHED", fmt.Sprintf("user %s token role %s, current role %s", user.ID, principal.Role, user.Role))
	}
	principal.Role = user.Role
	principal.Email = user.Email
	principal.Name = user.Name
	return principal, nil
}

// Check reports the principal for a token or ErrUnauthenticated.
func (s *Service) Check(ctx context.Context, token string) (*models.Principal, error) {
	principal, err := s.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return principal, nil
}

// EnsureAdmin bootstraps the configured administrator account. An existing
// account with that email is promoted; its password is left alone.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, userdb.ErrUserNotFound):
		hash, err := HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		admin := &models.User{
			ID:           utils.NewID(),
			Email:        email,
			Name:         "Administrator",
			PasswordHash: hash,
			Role:         models.RoleAdmin,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.Users.CreateUser(ctx, admin); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		s.Log.Info("AUTH", fmt.Sprintf("Admin account %s created", email))
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up admin: %w", err)
	case user.Role != models.RoleAdmin:
		if err := s.Users.UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return err
		}
		s.Log.Info("AUTH", fmt.Sprintf("User %s promoted to admin", user.ID))
	}
	return nil
}
