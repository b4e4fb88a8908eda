package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payflow/internal/billing"
	"payflow/internal/types"
)

// GrantStore implements billing.GrantDB on a pgx connection pool. Each
// BeginTx opens a real database transaction; all grant steps execute on it
// and become visible atomically at Commit.
type GrantStore struct {
	pool *pgxpool.Pool
}

// NewGrantStore creates a GrantStore backed by the given pool.
func NewGrantStore(pool *pgxpool.Pool) *GrantStore {
	return &GrantStore{pool: pool}
}

// BeginTx starts a grant transaction.
func (s *GrantStore) BeginTx(ctx context.Context) (billing.GrantTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &grantTx{tx: tx}, nil
}

// grantTx implements billing.GrantTx over a pgx.Tx.
type grantTx struct {
	tx pgx.Tx
}

// MarkPaymentSucceeded advances a pending payment to succeeded. The status
// guard in the WHERE clause enforces the monotone state machine at the
// storage level: a terminal row matches zero rows and the call fails with
// ErrCodeConflictPaymentState.
func (t *grantTx) MarkPaymentSucceeded(ctx context.Context, paymentID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE payments
		 SET status = 'succeeded', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		paymentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark payment succeeded", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeConflictPaymentState,
			"payment is not pending",
			nil,
		)
	}

	return nil
}

// DeactivateActiveSubscriptions demotes the user's active subscriptions to
// inactive. Zero rows affected is normal for a first purchase.
func (t *grantTx) DeactivateActiveSubscriptions(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'inactive', updated_at = NOW()
		 WHERE user_id = $1 AND status = 'active'`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate subscriptions", err)
	}
	return nil
}

// InsertActiveSubscription creates the granted entitlement row. The partial
// unique index on (user_id) WHERE status = 'active' makes any concurrent
// double-grant fail here rather than corrupting the invariant.
func (t *grantTx) InsertActiveSubscription(ctx context.Context, subID, userID string, planType types.PlanType, startDate, endDate time.Time) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO subscriptions (id, user_id, plan_type, status, start_date, end_date, auto_renew)
		 VALUES ($1, $2, $3, 'active', $4, $5, TRUE)`,
		subID, userID, planType, startDate, endDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert subscription", err)
	}
	return nil
}

// LinkPaymentToSubscription stamps the payment with the subscription it
// funded, completing reconciliation.
func (t *grantTx) LinkPaymentToSubscription(ctx context.Context, paymentID, subscriptionID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE payments
		 SET subscription_id = $1, updated_at = NOW()
		 WHERE id = $2`,
		subscriptionID, paymentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to link payment to subscription", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *grantTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction. Calling it after Commit returns
// pgx.ErrTxClosed, which callers ignore by convention.
func (t *grantTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
