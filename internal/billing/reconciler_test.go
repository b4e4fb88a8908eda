package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payflow/internal/types"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockPaymentLookup struct {
	mock.Mock
}

func (m *mockPaymentLookup) GetByExternalID(ctx context.Context, externalID string) (*types.Payment, error) {
	args := m.Called(ctx, externalID)
	if p := args.Get(0); p != nil {
		return p.(*types.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGrantDB struct {
	mock.Mock
}

func (m *mockGrantDB) BeginTx(ctx context.Context) (GrantTx, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(GrantTx), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGrantTx struct {
	mock.Mock
}

func (m *mockGrantTx) MarkPaymentSucceeded(ctx context.Context, paymentID string) error {
	return m.Called(ctx, paymentID).Error(0)
}

func (m *mockGrantTx) DeactivateActiveSubscriptions(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockGrantTx) InsertActiveSubscription(ctx context.Context, subID, userID string, planType types.PlanType, startDate, endDate time.Time) error {
	return m.Called(ctx, subID, userID, planType, startDate, endDate).Error(0)
}

func (m *mockGrantTx) LinkPaymentToSubscription(ctx context.Context, paymentID, subscriptionID string) error {
	return m.Called(ctx, paymentID, subscriptionID).Error(0)
}

func (m *mockGrantTx) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGrantTx) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Helpers ---

func pendingPayment(externalID string, period types.BillingPeriod) *types.Payment {
	ext := externalID
	return &types.Payment{
		ID:                "pay-1",
		UserID:            "user-1",
		Amount:            decimal.RequireFromString("990.00"),
		Currency:          "RUB",
		ExternalPaymentID: &ext,
		Status:            types.PaymentPending,
		Metadata: types.PaymentMetadata{
			PlanType:      types.PlanStarter,
			BillingPeriod: period,
		},
	}
}

func succeededEvent(externalID string) types.WebhookEvent {
	return types.WebhookEvent{
		Event:  types.GatewayEventPaymentSucceeded,
		Object: types.WebhookObject{ID: externalID, Status: "succeeded"},
	}
}

// --- Tests ---

func TestReconciler_IgnoresOtherEvents(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	r := NewReconciler(payments, grants, newDiscardLogger())

	outcome, err := r.HandleEvent(context.Background(), types.WebhookEvent{
		Event:  "payment.canceled",
		Object: types.WebhookObject{ID: "yk-1"},
	}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, ReconcileIgnored, outcome.Status)
	payments.AssertNotCalled(t, "GetByExternalID", mock.Anything, mock.Anything)
}

func TestReconciler_PaymentMissingIsAcked(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	r := NewReconciler(payments, grants, newDiscardLogger())

	payments.On("GetByExternalID", mock.Anything, "yk-unknown").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", nil))

	outcome, err := r.HandleEvent(context.Background(), succeededEvent("yk-unknown"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ReconcilePaymentMissing, outcome.Status)
	grants.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconciler_ReplayIsNoOp(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	r := NewReconciler(payments, grants, newDiscardLogger())

	payment := pendingPayment("yk-1", types.BillingMonthly)
	payment.Status = types.PaymentSucceeded
	subID := "sub-existing"
	payment.SubscriptionID = &subID

	payments.On("GetByExternalID", mock.Anything, "yk-1").Return(payment, nil)

	outcome, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReplay, outcome.Status)
	assert.Equal(t, "sub-existing", outcome.SubscriptionID)
	grants.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconciler_TerminalStateConflict(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	r := NewReconciler(payments, grants, newDiscardLogger())

	payment := pendingPayment("yk-1", types.BillingMonthly)
	payment.Status = types.PaymentFailed

	payments.On("GetByExternalID", mock.Anything, "yk-1").Return(payment, nil)

	_, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPaymentState, appErr.Code)
	grants.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconciler_GrantsMonthlySubscription(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	tx := new(mockGrantTx)
	r := NewReconciler(payments, grants, newDiscardLogger())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payments.On("GetByExternalID", mock.Anything, "yk-1").
		Return(pendingPayment("yk-1", types.BillingMonthly), nil)
	grants.On("BeginTx", mock.Anything).Return(tx, nil)

	tx.On("MarkPaymentSucceeded", mock.Anything, "pay-1").Return(nil)
	tx.On("DeactivateActiveSubscriptions", mock.Anything, "user-1").Return(nil)
	tx.On("InsertActiveSubscription", mock.Anything,
		mock.AnythingOfType("string"), "user-1", types.PlanStarter,
		now, now.AddDate(0, 0, 30),
	).Return(nil)
	tx.On("LinkPaymentToSubscription", mock.Anything, "pay-1", mock.AnythingOfType("string")).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil)

	outcome, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), now)
	require.NoError(t, err)
	assert.Equal(t, ReconcileGranted, outcome.Status)
	assert.Equal(t, "pay-1", outcome.PaymentID)
	assert.NotEmpty(t, outcome.SubscriptionID)

	tx.AssertExpectations(t)
}

func TestReconciler_GrantsYearlySubscription(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	tx := new(mockGrantTx)
	r := NewReconciler(payments, grants, newDiscardLogger())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payments.On("GetByExternalID", mock.Anything, "yk-1").
		Return(pendingPayment("yk-1", types.BillingYearly), nil)
	grants.On("BeginTx", mock.Anything).Return(tx, nil)

	tx.On("MarkPaymentSucceeded", mock.Anything, "pay-1").Return(nil)
	tx.On("DeactivateActiveSubscriptions", mock.Anything, "user-1").Return(nil)
	tx.On("InsertActiveSubscription", mock.Anything,
		mock.AnythingOfType("string"), "user-1", types.PlanStarter,
		now, now.AddDate(0, 0, 365),
	).Return(nil)
	tx.On("LinkPaymentToSubscription", mock.Anything, "pay-1", mock.AnythingOfType("string")).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil)

	_, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), now)
	require.NoError(t, err)
	tx.AssertExpectations(t)
}

func TestReconciler_RollsBackOnStepFailure(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	tx := new(mockGrantTx)
	r := NewReconciler(payments, grants, newDiscardLogger())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payments.On("GetByExternalID", mock.Anything, "yk-1").
		Return(pendingPayment("yk-1", types.BillingMonthly), nil)
	grants.On("BeginTx", mock.Anything).Return(tx, nil)

	tx.On("MarkPaymentSucceeded", mock.Anything, "pay-1").Return(nil)
	tx.On("DeactivateActiveSubscriptions", mock.Anything, "user-1").
		Return(errors.New("deadlock detected"))
	tx.On("Rollback", mock.Anything).Return(nil)

	_, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), now)
	require.Error(t, err)

	tx.AssertNotCalled(t, "InsertActiveSubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
	tx.AssertCalled(t, "Rollback", mock.Anything)
}

func TestReconciler_ConcurrentGrantLosesStateGuard(t *testing.T) {
	payments := new(mockPaymentLookup)
	grants := new(mockGrantDB)
	tx := new(mockGrantTx)
	r := NewReconciler(payments, grants, newDiscardLogger())

	// Another delivery won the race: the guarded status update matches
	// zero rows and the whole grant rolls back.
	payments.On("GetByExternalID", mock.Anything, "yk-1").
		Return(pendingPayment("yk-1", types.BillingMonthly), nil)
	grants.On("BeginTx", mock.Anything).Return(tx, nil)

	tx.On("MarkPaymentSucceeded", mock.Anything, "pay-1").
		Return(types.NewAppError(types.ErrCodeConflictPaymentState, "payment is not pending", nil))
	tx.On("Rollback", mock.Anything).Return(nil)

	_, err := r.HandleEvent(context.Background(), succeededEvent("yk-1"), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPaymentState, appErr.Code)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
}
