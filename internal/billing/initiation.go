// Package billing implements the payment and subscription domain services:
// payment initiation against the redirect gateway, webhook reconciliation,
// and plan-based feature access checks.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payflow/internal/types"
)

// PlanReader provides catalog lookups for initiation.
// Implemented by db.PlanRepo.
type PlanReader interface {
	GetByType(ctx context.Context, planType types.PlanType) (*types.Plan, error)
}

// PaymentCreator persists new payment rows.
// Implemented by db.PaymentRepo.
type PaymentCreator interface {
	Create(ctx context.Context, p *types.Payment) error
}

// PaymentGateway submits one logical charge attempt for redirect confirmation.
// Implemented by external.GatewayClient.
//
// Implementations MUST NOT retry a failed submission: a retry would be a new
// logical attempt and requires a fresh Idempotence-Key from the caller.
type PaymentGateway interface {
	CreateRedirectPayment(ctx context.Context, req types.ChargeRequest) (*types.ChargeResult, error)
}

// RenewalCandidateSource finds the subscription eligible for auto-renewal.
// Implemented by db.SubscriptionRepo.
type RenewalCandidateSource interface {
	GetRenewalCandidate(ctx context.Context, userID string, now time.Time, window time.Duration) (*types.SubscriptionWithPlan, error)
}

// DefaultRenewalWindow is how far ahead of expiry an auto-renewal charge may
// be initiated.
const DefaultRenewalWindow = 3 * 24 * time.Hour

// InitiationResult is the outcome of a payment initiation or renewal attempt.
type InitiationResult struct {
	PaymentID         string              `json:"payment_id"`
	ExternalPaymentID string              `json:"external_payment_id,omitempty"`
	ConfirmationURL   string              `json:"confirmation_url,omitempty"`
	Status            types.PaymentStatus `json:"status"`
	DemoMode          bool                `json:"demo_mode,omitempty"`
	Message           string              `json:"message,omitempty"`
}

// InitiatorConfig carries the configuration subset the Initiator needs.
type InitiatorConfig struct {
	// DemoMode is true when gateway credentials are absent. Initiation then
	// records the payment locally without contacting the gateway; renewal
	// refuses outright.
	DemoMode bool
	// DefaultReturnURL is where the gateway redirects the customer after
	// checkout when the request does not name its own return URL.
	DefaultReturnURL string
	// RenewalWindow bounds how far ahead of expiry a renewal may run.
	// Zero means DefaultRenewalWindow.
	RenewalWindow time.Duration
}

// Initiator creates payment attempts: first purchases via CreatePayment and
// auto-renewal charges via Renew. Both funnel through the same gateway
// submission path; renewals are marked with auto_renewal metadata.
type Initiator struct {
	plans    PlanReader
	payments PaymentCreator
	gateway  PaymentGateway
	subs     RenewalCandidateSource
	cfg      InitiatorConfig
	logger   *slog.Logger
}

// NewInitiator creates a payment initiation service.
func NewInitiator(
	plans PlanReader,
	payments PaymentCreator,
	gateway PaymentGateway,
	subs RenewalCandidateSource,
	cfg InitiatorConfig,
	logger *slog.Logger,
) *Initiator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RenewalWindow == 0 {
		cfg.RenewalWindow = DefaultRenewalWindow
	}
	return &Initiator{
		plans:    plans,
		payments: payments,
		gateway:  gateway,
		subs:     subs,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreatePayment initiates one logical payment attempt for a plan purchase.
//
// The flow:
//  1. Resolve the plan and price for the billing period.
//  2. Demo mode: record a pending payment locally and return without a
//     redirect URL.
//  3. Otherwise submit the charge to the gateway with a fresh
//     Idempotence-Key. The local row is inserted only after the gateway
//     responds, so a transport failure leaves no local state; the caller
//     may re-initiate as a new logical attempt. An ambiguous timeout is
//     never recorded as a failure.
func (i *Initiator) CreatePayment(
	ctx context.Context,
	userID string,
	planType types.PlanType,
	period types.BillingPeriod,
	returnURL string,
) (*InitiationResult, error) {
	plan, err := i.plans.GetByType(ctx, planType)
	if err != nil {
		return nil, err
	}

	amount := plan.Price(period)
	meta := types.PaymentMetadata{
		PlanType:      planType,
		BillingPeriod: period,
	}

	if i.cfg.DemoMode {
		payment := &types.Payment{
			ID:       uuid.NewString(),
			UserID:   userID,
			Amount:   amount,
			Currency: types.DefaultCurrency,
			Status:   types.PaymentPending,
			Metadata: types.PaymentMetadata{
				PlanType:      planType,
				BillingPeriod: period,
				DemoMode:      true,
			},
		}
		if err := i.payments.Create(ctx, payment); err != nil {
			return nil, err
		}

		i.logger.InfoContext(ctx, "demo payment recorded",
			slog.String("payment_id", payment.ID),
			slog.String("user_id", userID),
			slog.String("plan_type", string(planType)),
		)

		return &InitiationResult{
			PaymentID: payment.ID,
			Status:    types.PaymentPending,
			DemoMode:  true,
			Message:   "Для реальных платежей настройте GATEWAY_SHOP_ID и GATEWAY_SECRET_KEY",
		}, nil
	}

	if returnURL == "" {
		returnURL = i.cfg.DefaultReturnURL
	}

	result, err := i.gateway.CreateRedirectPayment(ctx, types.ChargeRequest{
		IdempotenceKey: uuid.NewString(),
		Amount:         amount,
		Currency:       types.DefaultCurrency,
		Description:    fmt.Sprintf("Подписка %s (%s)", planType, period),
		ReturnURL:      returnURL,
		Metadata:       meta.GatewayMetadata(userID),
	})
	if err != nil {
		// No local row exists yet; nothing is marked failed. The caller may
		// re-initiate, which is a new logical attempt with a new key.
		return nil, err
	}

	payment := &types.Payment{
		ID:                uuid.NewString(),
		UserID:            userID,
		Amount:            amount,
		Currency:          types.DefaultCurrency,
		PaymentMethod:     result.PaymentMethod,
		ExternalPaymentID: &result.ExternalID,
		Status:            result.Status,
		Metadata:          meta,
	}
	if err := i.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	i.logger.InfoContext(ctx, "payment initiated",
		slog.String("payment_id", payment.ID),
		slog.String("external_payment_id", result.ExternalID),
		slog.String("user_id", userID),
		slog.String("plan_type", string(planType)),
		slog.String("billing_period", string(period)),
	)

	return &InitiationResult{
		PaymentID:         payment.ID,
		ExternalPaymentID: result.ExternalID,
		ConfirmationURL:   result.ConfirmationURL,
		Status:            result.Status,
	}, nil
}

// Renew initiates an auto-renewal charge for the user's active subscription.
//
// Eligibility is resolved by the candidate query: the subscription must be
// active, have auto_renew enabled, and expire within the renewal window.
// The billing period is inferred from the subscription's span because the
// original purchase period is not stored on the row.
//
// Renewal never runs in demo mode: without gateway credentials there is no
// card to charge, so the attempt is a structured failure.
func (i *Initiator) Renew(ctx context.Context, userID string, now time.Time) (*InitiationResult, error) {
	candidate, err := i.subs.GetRenewalCandidate(ctx, userID, now, i.cfg.RenewalWindow)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"no subscription eligible for auto-renewal",
			nil,
		)
	}

	if i.cfg.DemoMode {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGateway,
			"gateway credentials not configured; auto-renewal unavailable",
			nil,
		)
	}

	period := candidate.InferredBillingPeriod()
	amount := candidate.Plan.Price(period)
	meta := types.PaymentMetadata{
		PlanType:      candidate.PlanType,
		BillingPeriod: period,
		AutoRenewal:   true,
	}

	result, err := i.gateway.CreateRedirectPayment(ctx, types.ChargeRequest{
		IdempotenceKey: uuid.NewString(),
		Amount:         amount,
		Currency:       types.DefaultCurrency,
		Description:    fmt.Sprintf("Автопродление подписки %s (%s)", candidate.PlanType, period),
		ReturnURL:      i.cfg.DefaultReturnURL,
		Metadata:       meta.GatewayMetadata(userID),
	})
	if err != nil {
		return nil, err
	}

	payment := &types.Payment{
		ID:                uuid.NewString(),
		UserID:            userID,
		Amount:            amount,
		Currency:          types.DefaultCurrency,
		PaymentMethod:     result.PaymentMethod,
		ExternalPaymentID: &result.ExternalID,
		Status:            result.Status,
		Metadata:          meta,
	}
	if err := i.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	i.logger.InfoContext(ctx, "auto-renewal payment initiated",
		slog.String("payment_id", payment.ID),
		slog.String("external_payment_id", result.ExternalID),
		slog.String("user_id", userID),
		slog.String("subscription_id", candidate.ID),
		slog.String("billing_period", string(period)),
	)

	return &InitiationResult{
		PaymentID:         payment.ID,
		ExternalPaymentID: result.ExternalID,
		ConfirmationURL:   result.ConfirmationURL,
		Status:            result.Status,
		Message:           "Auto-renewal payment created",
	}, nil
}
