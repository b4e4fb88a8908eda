package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payflow/internal/types"
)

func subscriptionRowValues(id string, createdAt time.Time) []any {
	return []any{
		id, "user-1", types.PlanStarter, types.SubActive,
		createdAt, createdAt.AddDate(0, 0, 30),
		true, createdAt, createdAt,
	}
}

func TestSubscriptionRepo_GetActiveByUser_None(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	sub, err := repo.GetActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSubscriptionRepo_GetActiveByUser_Single(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows([][]any{subscriptionRowValues("sub-1", now)}), nil)

	sub, err := repo.GetActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, types.SubActive, sub.Status)
	assert.True(t, sub.AutoRenew)
}

func TestSubscriptionRepo_GetActiveByUser_DuplicateActive(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows([][]any{
			subscriptionRowValues("sub-2", now),
			subscriptionRowValues("sub-1", now.Add(-time.Hour)),
		}), nil)

	_, err := repo.GetActiveByUser(context.Background(), "user-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictDuplicateActive, appErr.Code)
}

func TestSubscriptionRepo_GetActiveWithPlan_None(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	sp, err := repo.GetActiveWithPlan(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, sp)
}

func TestSubscriptionRepo_GetActiveWithPlan_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "sub-1"
				*dest[1].(*string) = "user-1"
				*dest[2].(*types.PlanType) = types.PlanProfessional
				*dest[3].(*types.SubscriptionStatus) = types.SubActive
				*dest[4].(*time.Time) = start
				*dest[5].(*time.Time) = start.AddDate(0, 0, 30)
				*dest[6].(*bool) = true
				*dest[7].(*time.Time) = start
				*dest[8].(*time.Time) = start
				*dest[9].(*types.PlanType) = types.PlanProfessional
				*dest[10].(*int) = 500
				*dest[11].(*int) = 10000
				*dest[12].(*int) = 50
				*dest[13].(*bool) = true
				*dest[14].(*bool) = false
				*dest[15].(*bool) = false
				*dest[16].(*decimal.Decimal) = decimal.RequireFromString("2990.00")
				*dest[17].(*decimal.Decimal) = decimal.RequireFromString("29900.00")
				return nil
			},
		})

	sp, err := repo.GetActiveWithPlan(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, "sub-1", sp.ID)
	assert.Equal(t, types.PlanProfessional, sp.Plan.PlanType)
	assert.True(t, sp.Plan.AIAnalysisEnabled)
}

func TestSubscriptionRepo_Cancel_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "status = 'cancelled'")
			assert.Contains(t, sql, "auto_renew = FALSE")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Cancel(context.Background(), "user-1")
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestSubscriptionRepo_Cancel_NoActive(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Cancel(context.Background(), "user-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepo_SetAutoRenew(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			values := args.Get(2).([]any)
			require.Len(t, values, 2)
			assert.Equal(t, false, values[0])
			assert.Equal(t, "user-1", values[1])
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetAutoRenew(context.Background(), "user-1", false)
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestSubscriptionRepo_ExpireOverdue(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			values := args.Get(2).([]any)
			require.Len(t, values, 1)
			assert.Equal(t, now, values[0])
		}).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	count, err := repo.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSubscriptionRepo_ListExpiringWithin(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	endDate := now.AddDate(0, 0, 5)
	rows := newMockRows([][]any{
		{"sub-1", "user-1", types.PlanStarter, endDate, true,
			"user@example.com", "Анна Петрова"},
	})

	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			values := args.Get(2).([]any)
			require.Len(t, values, 2)
			assert.Equal(t, now.Add(7*24*time.Hour), values[0])
			assert.Equal(t, now, values[1])
		}).
		Return(rows, nil)

	expiring, err := repo.ListExpiringWithin(context.Background(), now, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "sub-1", expiring[0].SubscriptionID)
	assert.Equal(t, "user@example.com", expiring[0].Email)
	assert.Equal(t, 5, expiring[0].DaysLeft(now))
}

func TestSubscriptionRepo_GetRenewalCandidate_None(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx, nil)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	sp, err := repo.GetRenewalCandidate(context.Background(), "user-1", time.Now(), 3*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, sp)
}
