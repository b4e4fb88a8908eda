package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{"pending to succeeded", PaymentPending, PaymentSucceeded, true},
		{"pending to failed", PaymentPending, PaymentFailed, true},
		{"pending to cancelled", PaymentPending, PaymentCancelled, true},
		{"same state is a no-op", PaymentSucceeded, PaymentSucceeded, true},
		{"succeeded never returns to pending", PaymentSucceeded, PaymentPending, false},
		{"succeeded never becomes failed", PaymentSucceeded, PaymentFailed, false},
		{"failed never becomes succeeded", PaymentFailed, PaymentSucceeded, false},
		{"cancelled never returns to pending", PaymentCancelled, PaymentPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentPending.IsTerminal())
	assert.True(t, PaymentSucceeded.IsTerminal())
	assert.True(t, PaymentFailed.IsTerminal())
	assert.True(t, PaymentCancelled.IsTerminal())
}

func TestBillingPeriod_TermDays(t *testing.T) {
	assert.Equal(t, 365, BillingYearly.TermDays())
	assert.Equal(t, 30, BillingMonthly.TermDays())
	// Unknown periods fall back to the monthly term.
	assert.Equal(t, 30, BillingPeriod("weekly").TermDays())
}

func TestSubscription_InferredBillingPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	yearly := Subscription{StartDate: start, EndDate: start.AddDate(0, 0, 365)}
	assert.Equal(t, BillingYearly, yearly.InferredBillingPeriod())

	monthly := Subscription{StartDate: start, EndDate: start.AddDate(0, 0, 30)}
	assert.Equal(t, BillingMonthly, monthly.InferredBillingPeriod())

	// Exactly at the threshold counts as monthly; the span must exceed it.
	boundary := Subscription{StartDate: start, EndDate: start.AddDate(0, 0, YearlySpanThresholdDays)}
	assert.Equal(t, BillingMonthly, boundary.InferredBillingPeriod())
}

func TestExpiringSubscription_DaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := ExpiringSubscription{EndDate: now.Add(6*24*time.Hour + 13*time.Hour)}
	assert.Equal(t, 6, e.DaysLeft(now))

	// Already past expiry floors at zero.
	past := ExpiringSubscription{EndDate: now.Add(-2 * time.Hour)}
	assert.Equal(t, 0, past.DaysLeft(now))
}

func TestPayment_Reconciled(t *testing.T) {
	subID := "sub_1"

	assert.True(t, (&Payment{Status: PaymentSucceeded, SubscriptionID: &subID}).Reconciled())
	assert.False(t, (&Payment{Status: PaymentSucceeded}).Reconciled())
	assert.False(t, (&Payment{Status: PaymentPending, SubscriptionID: &subID}).Reconciled())
}
