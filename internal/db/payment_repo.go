package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"payflow/internal/types"
)

// paymentHistoryLimit caps the getPaymentHistory read path. The dashboard
// shows recent activity only; older rows stay queryable via support tooling.
const paymentHistoryLimit = 50

// PaymentRepo persists payment attempts.
//
// Key invariants:
//   - external_payment_id is immutable once set: it is written exactly once
//     at insert, and no update path in this package touches it.
//   - Status transitions are monotone; terminal states are only written
//     through the grant transaction (GrantStore), which guards on the
//     current status.
type PaymentRepo struct {
	db DBTX
}

// NewPaymentRepo creates a new PaymentRepo backed by the given database
// connection (pool or transaction).
func NewPaymentRepo(db DBTX) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// Create inserts a new payment row. The caller assigns the ID and initial
// status; the row's external linkage fields may be nil (demo mode, or a
// gateway response carrying no payment method).
func (r *PaymentRepo) Create(ctx context.Context, p *types.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (
		     id, user_id, amount, currency, payment_method,
		     payment_system, external_payment_id, status, metadata
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.Amount, p.Currency, p.PaymentMethod,
		"yookassa", p.ExternalPaymentID, p.Status, p.Metadata,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create payment", err)
	}
	return nil
}

// paymentColumns is the shared column list for payment scans.
const paymentColumns = `id, user_id, amount, currency, payment_method,
	       external_payment_id, status, metadata, subscription_id,
	       created_at, updated_at`

// GetByExternalID fetches a payment by the gateway's payment identifier.
// Returns ErrCodeNotFoundPayment if no row matches: the webhook reconciler
// treats that as an acked no-op.
func (r *PaymentRepo) GetByExternalID(ctx context.Context, externalID string) (*types.Payment, error) {
	var p types.Payment
	err := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE external_payment_id = $1`,
		externalID,
	).Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.PaymentMethod,
		&p.ExternalPaymentID, &p.Status, &p.Metadata, &p.SubscriptionID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get payment by external id", err)
	}

	return &p, nil
}

// ListHistoryByUser returns the user's most recent payments, newest first,
// joined with the plan each payment funded (nil for unreconciled payments).
func (r *PaymentRepo) ListHistoryByUser(ctx context.Context, userID string) ([]types.PaymentHistoryItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.amount, p.currency, p.payment_method, p.status,
		        s.plan_type, p.created_at
		 FROM payments p
		 LEFT JOIN subscriptions s ON p.subscription_id = s.id
		 WHERE p.user_id = $1
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		userID, paymentHistoryLimit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payment history", err)
	}
	defer rows.Close()

	var items []types.PaymentHistoryItem
	for rows.Next() {
		var item types.PaymentHistoryItem
		if err := rows.Scan(
			&item.ID, &item.Amount, &item.Currency, &item.PaymentMethod,
			&item.Status, &item.PlanType, &item.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment history row", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate payment history rows", err)
	}

	return items, nil
}
