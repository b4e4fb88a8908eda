package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"payflow/internal/types"
)

// SubscriptionRepo manages subscription entitlement rows.
//
// Key invariants:
//   - At most one active subscription per user, enforced by a partial unique
//     index on (user_id) WHERE status = 'active'. GetActiveByUser still
//     detects a breach and surfaces it as a conflict instead of healing.
//   - Expiry is a single conditional bulk UPDATE (ExpireOverdue), never a
//     read-modify-write loop.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// GetActiveByUser returns the user's active subscription, or (nil, nil) when
// none exists. If more than one active row is found the storage invariant is
// breached; the call fails with ErrCodeConflictDuplicateActive rather than
// silently picking one.
func (r *SubscriptionRepo) GetActiveByUser(ctx context.Context, userID string) (*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, plan_type, status, start_date, end_date,
		        auto_renew, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = $1 AND status = 'active'
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get active subscription", err)
	}
	defer rows.Close()

	var subs []types.Subscription
	for rows.Next() {
		var s types.Subscription
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.PlanType, &s.Status, &s.StartDate, &s.EndDate,
			&s.AutoRenew, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscription rows", err)
	}

	switch len(subs) {
	case 0:
		return nil, nil
	case 1:
		return &subs[0], nil
	default:
		r.logger.ErrorContext(ctx, "duplicate active subscriptions detected",
			slog.String("user_id", userID),
			slog.Int("count", len(subs)),
		)
		return nil, types.NewAppError(
			types.ErrCodeConflictDuplicateActive,
			"user has more than one active subscription",
			nil,
		)
	}
}

// GetActiveWithPlan returns the user's active subscription joined with its
// plan limits, or (nil, nil) when the user has no active subscription.
func (r *SubscriptionRepo) GetActiveWithPlan(ctx context.Context, userID string) (*types.SubscriptionWithPlan, error) {
	var sp types.SubscriptionWithPlan
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.plan_type, s.status, s.start_date, s.end_date,
		        s.auto_renew, s.created_at, s.updated_at,
		        pl.plan_type, pl.max_clients, pl.max_calls_per_month,
		        pl.max_email_campaigns, pl.ai_analysis_enabled,
		        pl.ai_suggestions_enabled, pl.priority_support,
		        pl.price_monthly, pl.price_yearly
		 FROM subscriptions s
		 JOIN plan_limits pl ON s.plan_type = pl.plan_type
		 WHERE s.user_id = $1 AND s.status = 'active'
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(
		&sp.ID, &sp.UserID, &sp.PlanType, &sp.Status, &sp.StartDate, &sp.EndDate,
		&sp.AutoRenew, &sp.CreatedAt, &sp.UpdatedAt,
		&sp.Plan.PlanType, &sp.Plan.MaxClients, &sp.Plan.MaxCallsPerMonth,
		&sp.Plan.MaxEmailCampaigns, &sp.Plan.AIAnalysisEnabled,
		&sp.Plan.AISuggestionsEnabled, &sp.Plan.PrioritySupport,
		&sp.Plan.PriceMonthly, &sp.Plan.PriceYearly,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscription with plan", err)
	}

	return &sp, nil
}

// Cancel marks the user's active subscription cancelled and switches off
// auto-renew in the same statement. Returns ErrCodeNotFoundSubscription when
// the user has no active subscription to cancel.
func (r *SubscriptionRepo) Cancel(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'cancelled', auto_renew = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND status = 'active'`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "no active subscription to cancel", nil)
	}

	return nil
}

// SetAutoRenew updates the auto-renew flag on the user's active subscription.
// Returns ErrCodeNotFoundSubscription when the user has no active subscription.
func (r *SubscriptionRepo) SetAutoRenew(ctx context.Context, userID string, autoRenew bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET auto_renew = $1, updated_at = NOW()
		 WHERE user_id = $2 AND status = 'active'`,
		autoRenew, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update auto-renew", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "no active subscription", nil)
	}

	return nil
}

// ExpireOverdue flips every active subscription whose end_date has passed to
// expired in one conditional bulk UPDATE, and returns how many rows changed.
// The statement is idempotent: a second run matches zero rows.
func (r *SubscriptionRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND end_date < $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire overdue subscriptions", err)
	}

	return tag.RowsAffected(), nil
}

// ListExpiringWithin returns active subscriptions whose end_date falls inside
// (now, now+within], joined with the owner's contact info for notification
// delivery. Already-overdue rows are excluded; ExpireOverdue handles those.
func (r *SubscriptionRepo) ListExpiringWithin(ctx context.Context, now time.Time, within time.Duration) ([]types.ExpiringSubscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.user_id, s.plan_type, s.end_date, s.auto_renew,
		        u.email, COALESCE(u.full_name, '')
		 FROM subscriptions s
		 JOIN users u ON s.user_id = u.id
		 WHERE s.status = 'active'
		   AND s.end_date <= $1
		   AND s.end_date > $2`,
		now.Add(within), now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expiring subscriptions", err)
	}
	defer rows.Close()

	var expiring []types.ExpiringSubscription
	for rows.Next() {
		var e types.ExpiringSubscription
		if err := rows.Scan(
			&e.SubscriptionID, &e.UserID, &e.PlanType, &e.EndDate, &e.AutoRenew,
			&e.Email, &e.FullName,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expiring subscription row", err)
		}
		expiring = append(expiring, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate expiring subscription rows", err)
	}

	return expiring, nil
}

// GetRenewalCandidate returns the user's active auto-renew subscription whose
// end_date falls within the renewal window, joined with plan prices for the
// renewal charge. Returns (nil, nil) when the user has no eligible
// subscription: not active, auto-renew off, or not yet inside the window.
func (r *SubscriptionRepo) GetRenewalCandidate(ctx context.Context, userID string, now time.Time, window time.Duration) (*types.SubscriptionWithPlan, error) {
	var sp types.SubscriptionWithPlan
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.plan_type, s.status, s.start_date, s.end_date,
		        s.auto_renew, s.created_at, s.updated_at,
		        pl.plan_type, pl.max_clients, pl.max_calls_per_month,
		        pl.max_email_campaigns, pl.ai_analysis_enabled,
		        pl.ai_suggestions_enabled, pl.priority_support,
		        pl.price_monthly, pl.price_yearly
		 FROM subscriptions s
		 JOIN plan_limits pl ON s.plan_type = pl.plan_type
		 WHERE s.user_id = $1
		   AND s.status = 'active'
		   AND s.auto_renew = TRUE
		   AND s.end_date <= $2
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		userID, now.Add(window),
	).Scan(
		&sp.ID, &sp.UserID, &sp.PlanType, &sp.Status, &sp.StartDate, &sp.EndDate,
		&sp.AutoRenew, &sp.CreatedAt, &sp.UpdatedAt,
		&sp.Plan.PlanType, &sp.Plan.MaxClients, &sp.Plan.MaxCallsPerMonth,
		&sp.Plan.MaxEmailCampaigns, &sp.Plan.AIAnalysisEnabled,
		&sp.Plan.AISuggestionsEnabled, &sp.Plan.PrioritySupport,
		&sp.Plan.PriceMonthly, &sp.Plan.PriceYearly,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get renewal candidate", err)
	}

	return &sp, nil
}
