package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tobiloba/ajopool/pkg/middleware"
	"github.com/tobiloba/ajopool/pkg/response"
)

// WebhookVerifier checks a gateway webhook signature.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Handler handles payment HTTP requests
type Handler struct {
	service  *Service
	verifier WebhookVerifier
}

// NewHandler creates a new payment handler
func NewHandler(service *Service, verifier WebhookVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// Routes returns the authenticated payment routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/initialize", h.Initialize)
	r.Post("/reconcile", h.Reconcile)
	r.Get("/{reference}", h.GetStatus)
	return r
}

// Initialize godoc
// @Summary Initialize a payment
// @Description Validates the requested payment and returns a checkout reference and amount
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body InitializePaymentRequest true "Payment to initialize"
// @Success 201 {object} response.APIResponse{data=Intent}
// @Failure 400 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /payments/initialize [post]
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.GroupID <= 0 {
		response.BadRequest(w, "group_id is required")
		return
	}

	intent, err := h.service.Initialize(r.Context(), userID, req.GroupID, Type(req.PaymentType), req.PreferredSlot)
	if err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			response.NotFound(w, "Group not found")
		case errors.Is(err, ErrUnknownPaymentType):
			response.BadRequest(w, "Unknown payment type")
		case errors.Is(err, ErrNotGroupCreator):
			response.Forbidden(w, "Only the group creator can make this payment")
		case errors.Is(err, ErrGroupNotForming), errors.Is(err, ErrGroupNotActive):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrAlreadyJoined):
			response.Conflict(w, "Payer already holds a paid membership")
		case errors.Is(err, ErrNoApprovedRequest):
			response.Conflict(w, "No approved join request for this group")
		default:
			slog.Error("failed to initialize payment", "error", err)
			response.InternalError(w, "Failed to initialize payment")
		}
		return
	}

	response.JSON(w, http.StatusCreated, intent)
}

// Reconcile godoc
// @Summary Reconcile a payment
// @Description Verifies the payment with the gateway and applies its effects exactly once
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body ReconcileRequest true "Reference to reconcile"
// @Success 200 {object} response.APIResponse{data=Result}
// @Failure 402 {object} response.APIResponse
// @Failure 429 {object} response.APIResponse
// @Failure 502 {object} response.APIResponse
// @Router /payments/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.Reconcile(r.Context(), req.Reference)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// GetStatus godoc
// @Summary Get payment status
// @Description Returns the stored state of a payment the caller owns
// @Tags payments
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} response.APIResponse{data=PaymentStatusResponse}
// @Failure 404 {object} response.APIResponse
// @Router /payments/{reference} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	p, err := h.service.GetByReference(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			response.NotFound(w, "Payment not found")
			return
		}
		slog.Error("failed to get payment", "error", err)
		response.InternalError(w, "Failed to get payment")
		return
	}

	response.JSON(w, http.StatusOK, p.ToStatusResponse())
}

// Webhook receives gateway event deliveries. Unauthenticated route; trust
// comes from the HMAC signature over the raw body. Retryable failures return
// 503 so the gateway redelivers; everything else returns 200 so it stops.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "Failed to read body")
		return
	}

	if !h.verifier.VerifyWebhookSignature(body, r.Header.Get("x-paystack-signature")) {
		response.Unauthorized(w, "Invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(w, "Invalid event payload")
		return
	}

	if event.Event != "charge.success" || event.Data.Reference == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.service.Reconcile(r.Context(), event.Data.Reference); err != nil {
		if IsRetryable(err) {
			slog.Warn("webhook reconciliation deferred", "reference", event.Data.Reference, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "RETRY", "Reconciliation deferred")
			return
		}
		// Terminal errors are logged and acknowledged; redelivering the same
		// event cannot fix them.
		slog.Error("webhook reconciliation failed", "reference", event.Data.Reference, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidReference):
		response.BadRequest(w, "reference is required")
	case errors.Is(err, ErrUnknownReference):
		response.NotFound(w, "Unknown payment reference")
	case errors.Is(err, ErrBusy):
		response.Busy(w, "Payment is being processed, retry shortly")
	case errors.Is(err, ErrGatewayVerification):
		response.GatewayError(w, "Gateway verification failed, retry shortly")
	case errors.Is(err, ErrPaymentPending):
		response.Error(w, http.StatusPaymentRequired, "PAYMENT_PENDING", "Payment is still pending at the gateway")
	case errors.Is(err, ErrPaymentNotSuccessful):
		response.Error(w, http.StatusPaymentRequired, "PAYMENT_FAILED", "Payment was not successful")
	case errors.Is(err, ErrInsufficientAmount):
		response.UnprocessableEntity(w, "Paid amount is below the required total")
	case errors.Is(err, ErrNotGroupCreator), errors.Is(err, ErrNoApprovedRequest), errors.Is(err, ErrNotAMember):
		response.Conflict(w, err.Error())
	default:
		slog.Error("failed to reconcile payment", "error", err)
		response.InternalError(w, "Failed to reconcile payment")
	}
}
