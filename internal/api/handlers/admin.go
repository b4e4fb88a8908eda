package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payflow/internal/billing"
	"payflow/internal/core"
	"payflow/internal/scheduler"
)

// SweepRunner runs one lifecycle sweep. Implemented by scheduler.Sweeper.
type SweepRunner interface {
	SweepExpiring(ctx context.Context, now time.Time) (*scheduler.SweepResult, error)
}

// RenewalRunner initiates one auto-renewal charge.
// Implemented by billing.Initiator.
type RenewalRunner interface {
	Renew(ctx context.Context, userID string, now time.Time) (*billing.InitiationResult, error)
}

// RenewSubscriptionRequest is the request body for POST /v1/admin/renew.
type RenewSubscriptionRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// AdminHandler serves the operational endpoints invoked by the platform
// scheduler: lifecycle sweeps and forced renewals. The caller is responsible
// for mounting these routes behind AdminKeyMiddleware.
type AdminHandler struct {
	sweeper   SweepRunner
	renewals  RenewalRunner
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAdminHandler creates an admin operations handler.
func NewAdminHandler(
	sweeper SweepRunner,
	renewals RenewalRunner,
	validator *core.Validator,
	logger *slog.Logger,
) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		sweeper:   sweeper,
		renewals:  renewals,
		validator: validator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the admin routes onto the provided router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sweep", h.Sweep)
	r.Post("/renew", h.Renew)
}

// Sweep handles POST /v1/admin/sweep: one lifecycle sweep at the current
// instant. Safe to invoke at any cadence.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SweepExpiring(r.Context(), h.now())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

// Renew handles POST /v1/admin/renew: an auto-renewal charge for one user.
// Responds 404 when the user has no subscription inside the renewal window.
func (h *AdminHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req RenewSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.renewals.Renew(r.Context(), req.UserID, h.now())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "renewal initiated",
		slog.String("user_id", req.UserID),
		slog.String("payment_id", result.PaymentID),
	)

	core.JSON(w, r, http.StatusCreated, result)
}
