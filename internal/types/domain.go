package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is an immutable catalog row describing a subscription tier: its
// usage limits, feature flags, and prices. plan_type is globally unique.
type Plan struct {
	PlanType             PlanType        `json:"plan_type"`
	MaxClients           int             `json:"max_clients"`
	MaxCallsPerMonth     int             `json:"max_calls_per_month"`
	MaxEmailCampaigns    int             `json:"max_email_campaigns"`
	AIAnalysisEnabled    bool            `json:"ai_analysis_enabled"`
	AISuggestionsEnabled bool            `json:"ai_suggestions_enabled"`
	PrioritySupport      bool            `json:"priority_support"`
	PriceMonthly         decimal.Decimal `json:"price_monthly"`
	PriceYearly          decimal.Decimal `json:"price_yearly"`
}

// Price returns the charge amount for the given billing period.
func (p *Plan) Price(period BillingPeriod) decimal.Decimal {
	if period == BillingYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

// FeatureEnabled reports whether a gated feature is included in this plan.
// Features outside the gated set are always enabled.
func (p *Plan) FeatureEnabled(f Feature) bool {
	switch f {
	case FeatureAIAnalysis:
		return p.AIAnalysisEnabled
	case FeatureAISuggestions:
		return p.AISuggestionsEnabled
	default:
		return true
	}
}

// Payment is one attempt to collect money for a subscription. Rows are
// append-mostly: after creation only status, external linkage, and the
// updated_at stamp change, and only along the monotone state machine.
//
// ExternalPaymentID is nil until the gateway responds and immutable once
// set. SubscriptionID is nil until the webhook reconciler grants the
// entitlement this payment paid for.
type Payment struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     *string         `json:"payment_method,omitempty"`
	ExternalPaymentID *string         `json:"external_payment_id,omitempty"`
	Status            PaymentStatus   `json:"status"`
	Metadata          PaymentMetadata `json:"metadata"`
	SubscriptionID    *string         `json:"subscription_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Reconciled reports whether this payment has already been applied by the
// webhook reconciler. A reconciled payment must never grant a second
// subscription regardless of how many times its webhook is redelivered.
func (p *Payment) Reconciled() bool {
	return p.Status == PaymentSucceeded && p.SubscriptionID != nil
}

// Subscription is a user's entitlement to a plan's features for a bounded
// time window. At most one row per user may be active at any instant; the
// storage layer enforces this with a partial unique index.
type Subscription struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	PlanType  PlanType           `json:"plan_type"`
	Status    SubscriptionStatus `json:"status"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	AutoRenew bool               `json:"auto_renew"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// InferredBillingPeriod derives the billing period from the subscription's
// span. Renewals need this because the original purchase period is not
// stored on the subscription row itself.
func (s *Subscription) InferredBillingPeriod() BillingPeriod {
	if s.EndDate.Sub(s.StartDate) > time.Duration(YearlySpanThresholdDays)*24*time.Hour {
		return BillingYearly
	}
	return BillingMonthly
}

// SubscriptionWithPlan joins a subscription with its plan's limits for the
// getSubscription read path.
type SubscriptionWithPlan struct {
	Subscription
	Plan Plan `json:"plan"`
}

// ExpiringSubscription is a subscription nearing expiry joined with the
// owner's contact info, as returned by the sweeper's candidate query.
type ExpiringSubscription struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	PlanType       PlanType  `json:"plan_type"`
	EndDate        time.Time `json:"end_date"`
	AutoRenew      bool      `json:"auto_renew"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
}

// DaysLeft computes the whole days remaining until expiry, floored.
func (e *ExpiringSubscription) DaysLeft(now time.Time) int {
	d := int(e.EndDate.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// PaymentHistoryItem is a payment joined with the plan it funded, as
// returned by the getPaymentHistory read path.
type PaymentHistoryItem struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Status        PaymentStatus   `json:"status"`
	PlanType      *PlanType       `json:"plan_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FeatureAccess is the outcome of a checkAccess evaluation.
type FeatureAccess struct {
	Allowed         bool      `json:"access"`
	PlanType        *PlanType `json:"plan_type,omitempty"`
	UpgradeRequired bool      `json:"upgrade_required"`
	Reason          string    `json:"reason,omitempty"`
}

// ExpiryNotice is the fire-and-forget payload sent to the notification
// collaborator for a subscription nearing expiry. Delivery failures are
// logged by the caller and never propagated as a sweep failure.
type ExpiryNotice struct {
	ToEmail   string   `json:"to_email"`
	Subject   string   `json:"subject"`
	Message   string   `json:"message"`
	PlanType  PlanType `json:"plan_type"`
	DaysLeft  int      `json:"days_left"`
	AutoRenew bool     `json:"auto_renew"`
	Name      string   `json:"name"`
}
