package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/billing"
	"payflow/internal/core"
	"payflow/internal/types"
)

// PaymentInitiator creates payment attempts. Implemented by billing.Initiator.
type PaymentInitiator interface {
	CreatePayment(ctx context.Context, userID string, planType types.PlanType, period types.BillingPeriod, returnURL string) (*billing.InitiationResult, error)
}

// PaymentHistorySource reads the payment history view.
// Implemented by db.PaymentRepo.
type PaymentHistorySource interface {
	ListHistoryByUser(ctx context.Context, userID string) ([]types.PaymentHistoryItem, error)
}

// CreatePaymentRequest is the request body for POST /v1/payments.
type CreatePaymentRequest struct {
	UserID        string              `json:"user_id" validate:"required"`
	PlanType      types.PlanType      `json:"plan_type" validate:"required,plan_type"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required,billing_period"`
	ReturnURL     string              `json:"return_url" validate:"omitempty,url"`
}

// PaymentHistoryResponse is the response envelope for payment history.
type PaymentHistoryResponse struct {
	Payments []types.PaymentHistoryItem `json:"payments"`
}

// PaymentsHandler serves payment initiation and history.
type PaymentsHandler struct {
	initiator PaymentInitiator
	history   PaymentHistorySource
	validator *core.Validator
	logger    *slog.Logger
}

// NewPaymentsHandler creates a payments handler.
func NewPaymentsHandler(
	initiator PaymentInitiator,
	history PaymentHistorySource,
	validator *core.Validator,
	logger *slog.Logger,
) *PaymentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentsHandler{
		initiator: initiator,
		history:   history,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the payment routes onto the provided router.
func (h *PaymentsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.Create)
	r.Get("/payments/history", h.History)
}

// Create handles POST /v1/payments: one logical payment initiation attempt.
// In demo mode the response carries demo_mode=true and no confirmation URL;
// otherwise the client redirects the customer to confirmation_url.
func (h *PaymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.initiator.CreatePayment(r.Context(), req.UserID, req.PlanType, req.BillingPeriod, req.ReturnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, result)
}

// History handles GET /v1/payments/history?user_id=...
func (h *PaymentsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id query parameter is required",
			nil,
		))
		return
	}

	items, err := h.history.ListHistoryByUser(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if items == nil {
		items = []types.PaymentHistoryItem{}
	}

	core.JSON(w, r, http.StatusOK, PaymentHistoryResponse{Payments: items})
}
