package registration_api

import (
	"fmt"
	"net/http"

	"delified/internal/auth"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/registrations"
	"delified/internal/sse"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	RegistrationService *registrations.RegistrationService
	Broker              *sse.RegistrationBroker
	Logger              *logger.Logger
}

func NewHandler(svc *registrations.RegistrationService, broker *sse.RegistrationBroker, log *logger.Logger) *Handler {
	return &Handler{RegistrationService: svc, Broker: broker, Logger: log}
}

// MUNRoutes mounts under /api/muns.
func (h *Handler) MUNRoutes(r chi.Router, guard auth.Guard) {
	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Post("/register", h.Register)
		r.Get("/{munId}/registrations", h.ListByMUN)
		r.Get("/{munId}/registrations/stream", h.Stream)
	})
}

// Routes mounts under /api/registrations.
func (h *Handler) Routes(r chi.Router, guard auth.Guard) {
	r.Use(guard.Middleware)
	r.Get("/", h.ListMine)
	r.Post("/checkin", h.CheckIn)
	r.Get("/{registrationId}", h.GetRegistration)
	r.Delete("/{registrationId}", h.CancelRegistration)
	r.Get("/{registrationId}/badge", h.Badge)
}

var statusTable = map[error]int{
	registrations.ErrRegistrationNotFound: http.StatusNotFound,
	registrations.ErrMUNNotFound:          http.StatusNotFound,
	registrations.ErrAlreadyRegistered:    http.StatusConflict,
	registrations.ErrMUNFull:              http.StatusConflict,
	registrations.ErrRegistrationClosed:   http.StatusConflict,
	registrations.ErrInProgress:           http.StatusConflict,
	registrations.ErrNotCancellable:       http.StatusConflict,
	registrations.ErrNotConfirmed:         http.StatusConflict,
	registrations.ErrAlreadyCheckedIn:     http.StatusConflict,
	registrations.ErrInvalidAnswers:       http.StatusBadRequest,
	registrations.ErrInvalidBadge:         http.StatusBadRequest,
	registrations.ErrForbidden:            http.StatusForbidden,
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

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Register", err)
		return
	}

	reg, err := h.RegistrationService.Register(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.fail(w, "Register", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Register: registration %s for mun %s", reg.ID, reg.MUNID))
	utils.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	regs, err := h.RegistrationService.ListMine(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		h.fail(w, "ListMine", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, regs)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.RegistrationService.Get(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "registrationId"))
	if err != nil {
		h.fail(w, "GetRegistration", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.RegistrationService.Cancel(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "registrationId"))
	if err != nil {
		h.fail(w, "CancelRegistration", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) ListByMUN(w http.ResponseWriter, r *http.Request) {
	status := models.RegistrationStatus(r.URL.Query().Get("status"))
	regs, err := h.RegistrationService.ListByMUN(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "munId"), status)
	if err != nil {
		h.fail(w, "ListByMUN", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, regs)
}

func (h *Handler) Badge(w http.ResponseWriter, r *http.Request) {
	img, err := h.RegistrationService.Badge(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "registrationId"))
	if err != nil {
		h.fail(w, "Badge", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CheckIn", err)
		return
	}

	reg, err := h.RegistrationService.CheckIn(r.Context(), auth.PrincipalFrom(r.Context()), req.Badge)
	if err != nil {
		h.fail(w, "CheckIn", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reg)
}
