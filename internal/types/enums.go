package types

// PlanType identifies a subscription plan tier.
type PlanType string

const (
	PlanStarter      PlanType = "starter"
	PlanProfessional PlanType = "professional"
	PlanEnterprise   PlanType = "enterprise"
)

// BillingPeriod determines the length of a paid subscription term.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// TermDays returns the subscription term length granted by a successful
// payment for this billing period.
func (p BillingPeriod) TermDays() int {
	if p == BillingYearly {
		return 365
	}
	return 30
}

// PaymentStatus represents the lifecycle state of a payment attempt.
// Transitions are monotone: a payment that reached succeeded, failed or
// cancelled never returns to pending, and succeeded is terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed || s == PaymentCancelled
}

// CanTransitionTo reports whether moving from s to next preserves the
// monotone ordering of payment states.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return s == PaymentPending && next.IsTerminal()
}

// SubscriptionStatus represents the entitlement state of a subscription row.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubInactive  SubscriptionStatus = "inactive"
	SubCancelled SubscriptionStatus = "cancelled"
	SubExpired   SubscriptionStatus = "expired"
)

// Feature identifies a plan-gated platform capability.
type Feature string

const (
	FeatureAIAnalysis    Feature = "ai_analysis"
	FeatureAISuggestions Feature = "ai_suggestions"
)

// GatedFeatures is the allow-list of features subject to plan gating.
// Features outside this set resolve as accessible for any active plan.
var GatedFeatures = map[Feature]bool{
	FeatureAIAnalysis:    true,
	FeatureAISuggestions: true,
}

// GatewayEventPaymentSucceeded is the only inbound gateway event type that
// triggers a state change. Every other event type is acknowledged and ignored.
const GatewayEventPaymentSucceeded = "payment.succeeded"

// DefaultCurrency is the settlement currency for all plan prices.
const DefaultCurrency = "RUB"

// YearlySpanThresholdDays separates yearly from monthly terms when the
// billing period has to be inferred from an existing subscription's span.
const YearlySpanThresholdDays = 200
