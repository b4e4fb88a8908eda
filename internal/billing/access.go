package billing

import (
	"context"
	"log/slog"

	"payflow/internal/types"
)

// SubscriptionPlanReader resolves a user's active subscription joined with
// its plan limits. Implemented by db.SubscriptionRepo.
type SubscriptionPlanReader interface {
	GetActiveWithPlan(ctx context.Context, userID string) (*types.SubscriptionWithPlan, error)
}

// AccessChecker answers plan-gated feature access questions.
//
// Gated features (ai_analysis, ai_suggestions) fail closed: access requires
// an active subscription whose plan enables the feature. Unknown features
// fail open for any user with an active subscription, so shipping a new
// ungated feature does not require a billing deploy.
type AccessChecker struct {
	subs   SubscriptionPlanReader
	logger *slog.Logger
}

// NewAccessChecker creates a feature access service.
func NewAccessChecker(subs SubscriptionPlanReader, logger *slog.Logger) *AccessChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessChecker{subs: subs, logger: logger}
}

// CheckAccess evaluates whether the user may use the named feature.
// A user without an active subscription is always denied.
func (c *AccessChecker) CheckAccess(ctx context.Context, userID string, feature types.Feature) (*types.FeatureAccess, error) {
	sub, err := c.subs.GetActiveWithPlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sub == nil {
		return &types.FeatureAccess{
			Allowed:         false,
			UpgradeRequired: true,
			Reason:          "No active subscription",
		}, nil
	}

	planType := sub.PlanType

	if types.GatedFeatures[feature] {
		allowed := sub.Plan.FeatureEnabled(feature)
		return &types.FeatureAccess{
			Allowed:         allowed,
			PlanType:        &planType,
			UpgradeRequired: !allowed,
		}, nil
	}

	// Ungated feature: any active subscription suffices.
	return &types.FeatureAccess{
		Allowed:  true,
		PlanType: &planType,
	}, nil
}
