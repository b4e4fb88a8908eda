package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payflow/internal/types"
)

// PaymentLookup resolves a payment row from the gateway's identifier.
// Implemented by db.PaymentRepo.
type PaymentLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*types.Payment, error)
}

// GrantDB opens the transaction in which a confirmed payment grants its
// subscription. Implemented by db.GrantStore.
//
// The transactional flow is:
//  1. GetByExternalID resolves the payment outside any transaction.
//  2. BeginTx starts the grant transaction.
//  3. MarkPaymentSucceeded advances the payment along the monotone state
//     machine (guarded: only a pending row is changed).
//  4. DeactivateActiveSubscriptions demotes the user's current entitlement.
//  5. InsertActiveSubscription creates the new entitlement window.
//  6. LinkPaymentToSubscription stamps the payment with the subscription it
//     funded, making the payment terminally reconciled.
//  7. Commit / Rollback finalizes; a failure at any step rolls everything
//     back so the payment stays grantable by a webhook redelivery.
type GrantDB interface {
	BeginTx(ctx context.Context) (GrantTx, error)
}

// GrantTx is the set of operations available inside one grant transaction.
type GrantTx interface {
	// MarkPaymentSucceeded advances a pending payment to succeeded.
	// A payment in any other state is left untouched and the call fails
	// with ErrCodeConflictPaymentState.
	MarkPaymentSucceeded(ctx context.Context, paymentID string) error

	// DeactivateActiveSubscriptions demotes every active subscription of the
	// user to inactive. Affecting zero rows is normal (first purchase).
	DeactivateActiveSubscriptions(ctx context.Context, userID string) error

	// InsertActiveSubscription creates the granted entitlement row with
	// auto_renew enabled.
	InsertActiveSubscription(ctx context.Context, subID, userID string, planType types.PlanType, startDate, endDate time.Time) error

	// LinkPaymentToSubscription records which subscription the payment funded.
	LinkPaymentToSubscription(ctx context.Context, paymentID, subscriptionID string) error

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction. Safe to call after Commit (no-op).
	Rollback(ctx context.Context) error
}

// ReconcileStatus classifies the outcome of processing one webhook event.
type ReconcileStatus string

const (
	// ReconcileGranted means the payment was confirmed and a subscription
	// was granted in this call.
	ReconcileGranted ReconcileStatus = "granted"
	// ReconcileReplay means the payment was already reconciled; the
	// redelivered event was a successful no-op.
	ReconcileReplay ReconcileStatus = "replay"
	// ReconcileIgnored means the event type is outside the allow-list.
	ReconcileIgnored ReconcileStatus = "ignored"
	// ReconcilePaymentMissing means no local payment matches the gateway's
	// identifier. The event is acked so the gateway stops redelivering, but
	// the miss is logged as an operational signal.
	ReconcilePaymentMissing ReconcileStatus = "payment_missing"
)

// ReconcileOutcome reports what a webhook event did.
type ReconcileOutcome struct {
	Status         ReconcileStatus `json:"status"`
	PaymentID      string          `json:"payment_id,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
}

// Reconciler applies confirmed gateway payments to local billing state.
// It is the only writer of subscription grants; every path into an active
// subscription goes through HandleEvent.
type Reconciler struct {
	payments PaymentLookup
	grants   GrantDB
	logger   *slog.Logger
}

// NewReconciler creates a webhook reconciliation service.
func NewReconciler(payments PaymentLookup, grants GrantDB, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		payments: payments,
		grants:   grants,
		logger:   logger,
	}
}

// HandleEvent processes one gateway webhook event at the given instant.
//
// Only "payment.succeeded" is actionable; every other event type is ignored.
// Redeliveries are safe: an already-reconciled payment short-circuits to a
// successful no-op, and the grant itself runs in a single transaction so a
// crash mid-grant leaves the payment pending and grantable on redelivery.
//
// Errors split in two: storage failures are retryable and the caller surfaces
// them so the gateway redelivers; a terminal-state conflict is permanent and
// gets acked, since no redelivery can succeed it.
func (r *Reconciler) HandleEvent(ctx context.Context, event types.WebhookEvent, now time.Time) (*ReconcileOutcome, error) {
	if event.Event != types.GatewayEventPaymentSucceeded {
		r.logger.InfoContext(ctx, "webhook event ignored",
			slog.String("event", event.Event),
		)
		return &ReconcileOutcome{Status: ReconcileIgnored}, nil
	}

	payment, err := r.payments.GetByExternalID(ctx, event.Object.ID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPayment {
			// A payment we never created: most likely a charge initiated
			// against the same gateway account by another system, or a row
			// lost to an initiation crash. Ack and flag for ops.
			r.logger.WarnContext(ctx, "webhook for unknown payment",
				slog.String("external_payment_id", event.Object.ID),
			)
			return &ReconcileOutcome{Status: ReconcilePaymentMissing}, nil
		}
		return nil, err
	}

	if payment.Reconciled() {
		r.logger.InfoContext(ctx, "webhook replay for reconciled payment",
			slog.String("payment_id", payment.ID),
			slog.String("subscription_id", *payment.SubscriptionID),
		)
		return &ReconcileOutcome{
			Status:         ReconcileReplay,
			PaymentID:      payment.ID,
			SubscriptionID: *payment.SubscriptionID,
		}, nil
	}

	if !payment.Status.CanTransitionTo(types.PaymentSucceeded) {
		return nil, types.NewAppError(
			types.ErrCodeConflictPaymentState,
			"payment is in a terminal state and cannot succeed",
			nil,
		)
	}

	subID, err := r.grant(ctx, payment, now)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "subscription granted",
		slog.String("payment_id", payment.ID),
		slog.String("subscription_id", subID),
		slog.String("user_id", payment.UserID),
		slog.String("plan_type", string(payment.Metadata.PlanType)),
	)

	return &ReconcileOutcome{
		Status:         ReconcileGranted,
		PaymentID:      payment.ID,
		SubscriptionID: subID,
	}, nil
}

// grant runs the atomic five-step grant transaction and returns the new
// subscription ID.
func (r *Reconciler) grant(ctx context.Context, payment *types.Payment, now time.Time) (string, error) {
	tx, err := r.grants.BeginTx(ctx)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to begin grant transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.MarkPaymentSucceeded(ctx, payment.ID); err != nil {
		return "", err
	}

	if err := tx.DeactivateActiveSubscriptions(ctx, payment.UserID); err != nil {
		return "", err
	}

	period := payment.Metadata.BillingPeriod
	endDate := now.AddDate(0, 0, period.TermDays())
	subID := uuid.NewString()

	if err := tx.InsertActiveSubscription(ctx, subID, payment.UserID, payment.Metadata.PlanType, now, endDate); err != nil {
		return "", err
	}

	if err := tx.LinkPaymentToSubscription(ctx, payment.ID, subID); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to commit grant transaction", err)
	}

	return subID, nil
}
