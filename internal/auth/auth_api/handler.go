package auth_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"delified/internal/auth"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

type AuthService interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.Session, error)
	AdminLogin(ctx context.Context, req models.LoginRequest) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	Check(ctx context.Context, token string) (*models.Principal, error)
}

type Handler struct {
	AuthService  AuthService
	Logger       *logger.Logger
	CookieSecure bool
}

func NewHandler(svc AuthService, log *logger.Logger, cookieSecure bool) *Handler {
	return &Handler{AuthService: svc, Logger: log, CookieSecure: cookieSecure}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/admin-login", h.AdminLogin)
	r.Post("/logout", h.Logout)
	r.Get("/check", h.Check)
}

var statusTable = map[error]int{
	auth.ErrInvalidCredentials: http.StatusUnauthorized,
	auth.ErrUnauthenticated:    http.StatusUnauthorized,
	auth.ErrEmailTaken:         http.StatusConflict,
	auth.ErrNotAdmin:           http.StatusForbidden,
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	httpErr := utils.StatusError(err, statusTable)
	if httpErr.Code >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, httpErr)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Signup", err)
		return
	}

	user, err := h.AuthService.Signup(r.Context(), req)
	if err != nil {
		h.fail(w, "Signup", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "Login", h.AuthService.Login)
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "AdminLogin", h.AuthService.AdminLogin)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, models.LoginRequest) (*models.Session, error)) {
	var req models.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, op, err)
		return
	}

	session, err := fn(r.Context(), req)
	if err != nil {
		h.fail(w, op, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, session.ExpiresAt))
	h.Logger.Info("API", fmt.Sprintf("%s: session issued for user %s", op, session.User.ID))
	utils.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := auth.ExtractTokenFromRequest(r); err == nil {
		if err := h.AuthService.Logout(r.Context(), token); err != nil {
			h.fail(w, "Logout", err)
			return
		}
	}

	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{"authenticated": false})
		return
	}

	principal, err := h.AuthService.Check(r.Context(), token)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("Check: %v", err))
		utils.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{"authenticated": false})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          principal,
	})
}

func (h *Handler) sessionCookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}
