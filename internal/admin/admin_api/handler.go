package admin_api

import (
	"context"
	"fmt"
	"net/http"

	"delified/internal/admin"
	"delified/internal/auth"
	"delified/internal/community"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/muns"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

// PostModerator deletes community posts on behalf of an admin.
type PostModerator interface {
	DeletePost(ctx context.Context, p *models.Principal, id string) error
}

// Handler handles admin dashboard endpoints
type Handler struct {
	Service *admin.Service
	Posts   PostModerator
	Logger  *logger.Logger
}

func NewHandler(service *admin.Service, posts PostModerator, log *logger.Logger) *Handler {
	return &Handler{Service: service, Posts: posts, Logger: log}
}

// Routes mounts under /api/admin; every route requires the admin role.
func (h *Handler) Routes(r chi.Router, guard auth.Guard) {
	r.Use(guard.Middleware, auth.RequireAdmin)
	r.Get("/stats", h.GetStats)
	r.Get("/users", h.ListUsers)
	r.Put("/users/{userId}/role", h.SetUserRole)
	r.Get("/muns", h.ListMUNs)
	r.Put("/muns/{munId}/status", h.SetMUNStatus)
	r.Get("/muns/{munId}/registrations", h.ListRegistrations)
	r.Get("/muns/{munId}/analytics", h.GetMUNAnalytics)
	r.Delete("/posts/{postId}", h.DeletePost)
}

var statusTable = map[error]int{
	admin.ErrUserNotFound:     http.StatusNotFound,
	admin.ErrMUNNotFound:      http.StatusNotFound,
	admin.ErrInvalidRole:      http.StatusBadRequest,
	admin.ErrSelfDemotion:     http.StatusConflict,
	muns.ErrInvalidMUN:        http.StatusBadRequest,
	community.ErrPostNotFound: http.StatusNotFound,
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	httpErr := utils.StatusError(err, statusTable)
	if httpErr.Code >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, httpErr)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.fail(w, "GetStats", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Dashboard statistics", stats)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context(), utils.QueryInt(r, "limit", 0), utils.QueryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, "ListUsers", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Users retrieved", users)
}

func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req models.RoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "SetUserRole", err)
		return
	}

	user, err := h.Service.SetUserRole(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "userId"), req.Role)
	if err != nil {
		h.fail(w, "SetUserRole", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Role updated", user)
}

func (h *Handler) ListMUNs(w http.ResponseWriter, r *http.Request) {
	status := models.MUNStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.fail(w, "ListMUNs", utils.ErrBadRequest(fmt.Sprintf("unknown status %q", status)))
		return
	}

	list, err := h.Service.ListMUNs(r.Context(), status, utils.QueryInt(r, "limit", 0), utils.QueryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, "ListMUNs", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "MUNs retrieved", list)
}

func (h *Handler) SetMUNStatus(w http.ResponseWriter, r *http.Request) {
	var req models.MUNStatusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "SetMUNStatus", err)
		return
	}

	mun, err := h.Service.SetMUNStatus(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "munId"), req.Status)
	if err != nil {
		h.fail(w, "SetMUNStatus", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "MUN status updated", mun)
}

func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	status := models.RegistrationStatus(r.URL.Query().Get("status"))
	regs, err := h.Service.ListRegistrations(r.Context(), chi.URLParam(r, "munId"), status)
	if err != nil {
		h.fail(w, "ListRegistrations", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Registrations retrieved", regs)
}

func (h *Handler) GetMUNAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.Service.MUNAnalytics(r.Context(), chi.URLParam(r, "munId"))
	if err != nil {
		h.fail(w, "GetMUNAnalytics", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "MUN analytics", analytics)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.Posts.DeletePost(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId")); err != nil {
		h.fail(w, "DeletePost", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
