package core

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payflow/internal/types"
)

type createPaymentInput struct {
	UserID        string `validate:"required"`
	PlanType      string `validate:"required,plan_type"`
	BillingPeriod string `validate:"required,billing_period"`
}

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateStruct_Valid(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidateStruct(createPaymentInput{
		UserID:        "u1",
		PlanType:      "professional",
		BillingPeriod: "monthly",
	}))
}

func TestValidateStruct_MissingField(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(createPaymentInput{
		PlanType:      "starter",
		BillingPeriod: "yearly",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Contains(t, appErr.Details, "user_id")
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
}

func TestValidateStruct_InvalidPlanType(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(createPaymentInput{
		UserID:        "u1",
		PlanType:      "platinum",
		BillingPeriod: "monthly",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidPlan, appErr.Code)
	assert.Contains(t, appErr.Details, "plan_type")
}

func TestValidateStruct_InvalidBillingPeriod(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(createPaymentInput{
		UserID:        "u1",
		PlanType:      "starter",
		BillingPeriod: "weekly",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidPeriod, appErr.Code)
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "user_id", toSnakeCase("UserID"))
	assert.Equal(t, "plan_type", toSnakeCase("PlanType"))
	assert.Equal(t, "feature", toSnakeCase("Feature"))
	assert.Equal(t, "auto_renewal", toSnakeCase("AutoRenewal"))
}
