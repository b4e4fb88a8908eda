// Package handlers contains the HTTP handler implementations for the billing
// API. Each handler declares the narrow service interfaces it consumes and is
// wired with concrete implementations by the application entry point.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/core"
	"payflow/internal/types"
)

// PlanLister provides the plan catalog. Implemented by db.PlanRepo.
type PlanLister interface {
	List(ctx context.Context) ([]types.Plan, error)
}

// PlansResponse is the catalog response envelope.
type PlansResponse struct {
	Plans []types.Plan `json:"plans"`
}

// PlansHandler serves the plan catalog.
type PlansHandler struct {
	plans  PlanLister
	logger *slog.Logger
}

// NewPlansHandler creates a plan catalog handler.
func NewPlansHandler(plans PlanLister, logger *slog.Logger) *PlansHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlansHandler{plans: plans, logger: logger}
}

// RegisterRoutes mounts the catalog routes onto the provided router.
func (h *PlansHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.List)
}

// List handles GET /v1/plans. Plans come back cheapest-first.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if plans == nil {
		plans = []types.Plan{}
	}

	core.JSON(w, r, http.StatusOK, PlansResponse{Plans: plans})
}
