// Package authtest provides a header driven Guard for handler tests.
package authtest

import (
	"net/http"

	"delified/internal/auth"
	"delified/internal/models"
	"delified/internal/utils"
)

const (
	HeaderUserID = "X-Test-User"
	HeaderRole   = "X-Test-Role"
)

// Guard trusts the X-Test-User and X-Test-Role headers.
type Guard struct{}

func principal(r *http.Request) *models.Principal {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return nil
	}
	role := models.Role(r.Header.Get(HeaderRole))
	if role == "" {
		role = models.RoleUser
	}
	return &models.Principal{UserID: id, Email: id + "@test.io", Name: "User " + id, Role: role}
}

func (Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principal(r)
		if p == nil {
			utils.WriteError(w, utils.ErrUnauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (Guard) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := principal(r); p != nil {
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// As sets the test principal headers on r.
func As(r *http.Request, userID string, role models.Role) *http.Request {
	r.Header.Set(HeaderUserID, userID)
	r.Header.Set(HeaderRole, string(role))
	return r
}
