package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/utils"
)

type contextKey string

const principalKey contextKey = "principal"

// Verifier turns a raw bearer or cookie token into a principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*models.Principal, error)
}

// Authenticator tries each verifier in order; the first success wins.
type Authenticator struct {
	verifiers []Verifier
	log       *logger.Logger
}

func NewAuthenticator(log *logger.Logger, verifiers ...Verifier) *Authenticator {
	return &Authenticator{verifiers: verifiers, log: log}
}

func (a *Authenticator) authenticate(r *http.Request) (*models.Principal, error) {
	rawToken, err := ExtractTokenFromRequest(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var errs []error
	for _, v := range a.verifiers {
		principal, err := v.Verify(r.Context(), rawToken)
		if err == nil {
			return principal, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, errors.Join(errs...))
}

// Middleware rejects requests without a valid session.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.authenticate(r)
		if err != nil {
			a.log.Debug("AUTH", fmt.Sprintf("%s %s rejected: %v", r.Method, r.URL.Path, err))
			utils.WriteError(w, utils.ErrUnauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// Optional attaches the principal when the request carries a valid session
// and lets anonymous requests through.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, err := a.authenticate(r); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFrom(r.Context()).IsAdmin() {
			utils.WriteError(w, utils.ErrForbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *models.Principal {
	if p, ok := ctx.Value(principalKey).(*models.Principal); ok {
		return p
	}
	return nil
}

// Guard is what route tables need from an authenticator.
type Guard interface {
	Middleware(next http.Handler) http.Handler
	Optional(next http.Handler) http.Handler
}
