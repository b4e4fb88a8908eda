package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"payflow/internal/types"
)

// PlanRepo reads the immutable plan catalog. Plans are seeded by migration
// and never mutated at runtime, so the repo exposes no write methods.
type PlanRepo struct {
	db DBTX
}

// NewPlanRepo creates a new PlanRepo backed by the given database connection
// (pool or transaction).
func NewPlanRepo(db DBTX) *PlanRepo {
	return &PlanRepo{db: db}
}

// planColumns is the shared column list for plan_limits scans.
const planColumns = `plan_type, max_clients, max_calls_per_month, max_email_campaigns,
	       ai_analysis_enabled, ai_suggestions_enabled, priority_support,
	       price_monthly, price_yearly`

// List returns all plans ordered ascending by monthly price, so clients can
// render the catalog cheapest-first without sorting.
func (r *PlanRepo) List(ctx context.Context) ([]types.Plan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+planColumns+`
		 FROM plan_limits
		 ORDER BY price_monthly ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []types.Plan
	for rows.Next() {
		var p types.Plan
		if err := rows.Scan(
			&p.PlanType, &p.MaxClients, &p.MaxCallsPerMonth, &p.MaxEmailCampaigns,
			&p.AIAnalysisEnabled, &p.AISuggestionsEnabled, &p.PrioritySupport,
			&p.PriceMonthly, &p.PriceYearly,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan row", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate plan rows", err)
	}

	return plans, nil
}

// GetByType fetches a single plan by its tier identifier.
// Returns ErrCodeNotFoundPlan if no such plan exists.
func (r *PlanRepo) GetByType(ctx context.Context, planType types.PlanType) (*types.Plan, error) {
	var p types.Plan
	err := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM plan_limits
		 WHERE plan_type = $1`,
		planType,
	).Scan(
		&p.PlanType, &p.MaxClients, &p.MaxCallsPerMonth, &p.MaxEmailCampaigns,
		&p.AIAnalysisEnabled, &p.AISuggestionsEnabled, &p.PrioritySupport,
		&p.PriceMonthly, &p.PriceYearly,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get plan", err)
	}

	return &p, nil
}
