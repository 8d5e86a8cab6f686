package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"delified/internal/auth"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/payment/services"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

// stripe signs at most 64KB of event payload
const maxWebhookBytes = 65536

type PaymentHandler struct {
	Checkout *services.CheckoutService
	Logger   *logger.Logger
}

func NewPaymentHandler(checkout *services.CheckoutService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{Checkout: checkout, Logger: log}
}

// MUNRoutes mounts under /api/muns.
func (h *PaymentHandler) MUNRoutes(r chi.Router, guard auth.Guard) {
	r.With(guard.Middleware).Post("/checkout", h.CreateCheckout)
}

// Routes mounts under /api/payments. The webhook authenticates by signature.
func (h *PaymentHandler) Routes(r chi.Router, guard auth.Guard) {
	r.Post("/webhook", h.StripeWebhook)
	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Post("/", h.ProcessPayment)
		r.Get("/{paymentId}", h.GetPayment)
	})
}

var statusTable = map[error]int{
	services.ErrPaymentNotFound:      http.StatusNotFound,
	services.ErrRegistrationNotFound: http.StatusNotFound,
	services.ErrForbidden:            http.StatusForbidden,
	services.ErrNotPayable:           http.StatusConflict,
	services.ErrPaymentClosed:        http.StatusConflict,
	services.ErrProcessor:            http.StatusBadGateway,
}

func (h *PaymentHandler) fail(w http.ResponseWriter, op string, err error) {
	httpErr := utils.StatusError(err, statusTable)
	if httpErr.Code >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, httpErr)
}

// CreateCheckout opens (or returns) the payment for a pending registration.
func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CreateCheckout", err)
		return
	}

	payment, err := h.Checkout.Checkout(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.fail(w, "CreateCheckout", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateCheckout: payment %s for registration %s", payment.ID, payment.RegistrationID))
	utils.WriteSuccess(w, http.StatusCreated, "Checkout created", payment)
}

// ProcessPayment syncs a payment with the processor.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PayRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "ProcessPayment", err)
		return
	}

	payment, err := h.Checkout.Pay(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.fail(w, "ProcessPayment", err)
		return
	}

	message := "Payment is still processing"
	switch payment.Status {
	case models.StatusSuccess:
		message = "Payment processed successfully"
	case models.StatusFailed:
		message = "Payment failed"
	case models.StatusCancelled:
		message = "Payment was cancelled"
	}
	utils.WriteSuccess(w, http.StatusOK, message, payment)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Checkout.Get(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.fail(w, "GetPayment", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment retrieved successfully", payment)
}

// StripeWebhook handles webhook events from Stripe
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	err = h.Checkout.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *services.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))
		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
