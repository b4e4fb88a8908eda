package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/core"
	"payflow/internal/types"
)

// SubscriptionReader resolves the active subscription view.
// Implemented by db.SubscriptionRepo.
type SubscriptionReader interface {
	GetActiveWithPlan(ctx context.Context, userID string) (*types.SubscriptionWithPlan, error)
}

// SubscriptionManager mutates subscription settings.
// Implemented by db.SubscriptionRepo.
type SubscriptionManager interface {
	Cancel(ctx context.Context, userID string) error
	SetAutoRenew(ctx context.Context, userID string, autoRenew bool) error
}

// FeatureAccessChecker answers feature gating questions.
// Implemented by billing.AccessChecker.
type FeatureAccessChecker interface {
	CheckAccess(ctx context.Context, userID string, feature types.Feature) (*types.FeatureAccess, error)
}

// SubscriptionResponse is the getSubscription envelope. Subscription is null
// when the user has no active subscription.
type SubscriptionResponse struct {
	Subscription *types.SubscriptionWithPlan `json:"subscription"`
	Message      string                      `json:"message,omitempty"`
}

// CancelSubscriptionRequest is the request body for POST /v1/subscriptions/cancel.
type CancelSubscriptionRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// UpdateAutoRenewRequest is the request body for PUT /v1/subscriptions/auto-renew.
// AutoRenew is a pointer so an absent field is a validation error rather than
// silently disabling renewal.
type UpdateAutoRenewRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	AutoRenew *bool  `json:"auto_renew" validate:"required"`
}

// UpdateAutoRenewResponse confirms the new auto-renew setting.
type UpdateAutoRenewResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	AutoRenew bool   `json:"auto_renew"`
}

// CancelSubscriptionResponse confirms a cancellation.
type CancelSubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubscriptionsHandler serves subscription reads, cancellation, auto-renew
// settings, and feature access checks.
type SubscriptionsHandler struct {
	reader    SubscriptionReader
	manager   SubscriptionManager
	access    FeatureAccessChecker
	validator *core.Validator
	logger    *slog.Logger
}

// NewSubscriptionsHandler creates a subscriptions handler.
func NewSubscriptionsHandler(
	reader SubscriptionReader,
	manager SubscriptionManager,
	access FeatureAccessChecker,
	validator *core.Validator,
	logger *slog.Logger,
) *SubscriptionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionsHandler{
		reader:    reader,
		manager:   manager,
		access:    access,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the subscription routes onto the provided router.
func (h *SubscriptionsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/subscriptions", h.Get)
	r.Get("/subscriptions/access", h.CheckAccess)
	r.Post("/subscriptions/cancel", h.Cancel)
	r.Put("/subscriptions/auto-renew", h.UpdateAutoRenew)
}

// Get handles GET /v1/subscriptions?user_id=...
// No active subscription is a normal outcome, not an error.
func (h *SubscriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id query parameter is required",
			nil,
		))
		return
	}

	sub, err := h.reader.GetActiveWithPlan(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := SubscriptionResponse{Subscription: sub}
	if sub == nil {
		resp.Message = "No active subscription"
	}

	core.JSON(w, r, http.StatusOK, resp)
}

// CheckAccess handles GET /v1/subscriptions/access?user_id=...&feature=...
func (h *SubscriptionsHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	feature := r.URL.Query().Get("feature")
	if userID == "" || feature == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id and feature query parameters are required",
			nil,
		))
		return
	}

	access, err := h.access.CheckAccess(r.Context(), userID, types.Feature(feature))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, access)
}

// Cancel handles POST /v1/subscriptions/cancel. Cancellation also switches
// off auto-renew so the sweeper never charges a cancelled customer.
func (h *SubscriptionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.manager.Cancel(r.Context(), req.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription cancelled",
		slog.String("user_id", req.UserID),
	)

	core.JSON(w, r, http.StatusOK, CancelSubscriptionResponse{
		Success: true,
		Message: "Subscription cancelled",
	})
}

// UpdateAutoRenew handles PUT /v1/subscriptions/auto-renew.
func (h *SubscriptionsHandler) UpdateAutoRenew(w http.ResponseWriter, r *http.Request) {
	var req UpdateAutoRenewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	autoRenew := *req.AutoRenew
	if err := h.manager.SetAutoRenew(r.Context(), req.UserID, autoRenew); err != nil {
		core.Error(w, r, err)
		return
	}

	message := "Auto-renew disabled"
	if autoRenew {
		message = "Auto-renew enabled"
	}

	core.JSON(w, r, http.StatusOK, UpdateAutoRenewResponse{
		Success:   true,
		Message:   message,
		AutoRenew: autoRenew,
	})
}
