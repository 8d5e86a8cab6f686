package mun_api

import (
	"fmt"
	"net/http"

	"delified/internal/auth"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/muns"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	MUNService *muns.MUNService
	Logger     *logger.Logger
}

func NewHandler(svc *muns.MUNService, log *logger.Logger) *Handler {
	return &Handler{MUNService: svc, Logger: log}
}

// Routes mounts under /api/muns.
func (h *Handler) Routes(r chi.Router, guard auth.Guard) {
	r.With(guard.Optional).Get("/", h.ListMUNs)
	r.With(guard.Optional).Get("/{munId}", h.GetMUN)

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Post("/", h.CreateMUN)
		r.Post("/create", h.CreateMUN)
		r.Get("/dashboard", h.Dashboard)
		r.Put("/{munId}", h.UpdateMUN)
		r.Post("/{munId}/publish", h.PublishMUN)
		r.Post("/{munId}/cancel", h.CancelMUN)
	})
}

var statusTable = map[error]int{
	muns.ErrMUNNotFound:  http.StatusNotFound,
	muns.ErrForbidden:    http.StatusForbidden,
	muns.ErrInvalidMUN:   http.StatusBadRequest,
	muns.ErrFieldsLocked: http.StatusConflict,
	muns.ErrMUNCancelled: http.StatusConflict,
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

func (h *Handler) ListMUNs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := muns.ListFilter{
		Query:        q.Get("q"),
		UpcomingOnly: q.Get("upcoming") != "false",
		Limit:        utils.QueryInt(r, "limit", muns.DefaultPageSize),
		Offset:       utils.QueryInt(r, "offset", 0),
	}

	list, err := h.MUNService.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "ListMUNs", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetMUN(w http.ResponseWriter, r *http.Request) {
	munID := chi.URLParam(r, "munId")

	mun, err := h.MUNService.Get(r.Context(), auth.PrincipalFrom(r.Context()), munID)
	if err != nil {
		h.fail(w, "GetMUN", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, mun)
}

func (h *Handler) CreateMUN(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMUNRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CreateMUN", err)
		return
	}

	mun, err := h.MUNService.Create(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.fail(w, "CreateMUN", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateMUN: created %s", mun.ID))
	utils.WriteJSON(w, http.StatusCreated, mun)
}

func (h *Handler) UpdateMUN(w http.ResponseWriter, r *http.Request) {
	munID := chi.URLParam(r, "munId")

	var req models.UpdateMUNRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "UpdateMUN", err)
		return
	}

	mun, err := h.MUNService.Update(r.Context(), auth.PrincipalFrom(r.Context()), munID, req)
	if err != nil {
		h.fail(w, "UpdateMUN", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, mun)
}

func (h *Handler) PublishMUN(w http.ResponseWriter, r *http.Request) {
	mun, err := h.MUNService.Publish(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "munId"))
	if err != nil {
		h.fail(w, "PublishMUN", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, mun)
}

func (h *Handler) CancelMUN(w http.ResponseWriter, r *http.Request) {
	mun, err := h.MUNService.Cancel(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "munId"))
	if err != nil {
		h.fail(w, "CancelMUN", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, mun)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.MUNService.Dashboard(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		h.fail(w, "Dashboard", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}
