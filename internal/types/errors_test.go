package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeValidationInvalidPlan, http.StatusBadRequest},
		{ErrCodeAuthSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeAuthAdminKeyInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundPlan, http.StatusNotFound},
		{ErrCodeConflictDuplicateActive, http.StatusConflict},
		{ErrCodeConflictPaymentState, http.StatusConflict},
		{ErrCodeUpstreamGateway, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("no_such_prefix"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
		})
	}
}

func TestErrorCode_Retryable(t *testing.T) {
	assert.True(t, ErrCodeInternalDB.Retryable())
	assert.False(t, ErrCodeUpstreamGatewayAPI.Retryable())
	assert.False(t, ErrCodeValidationInvalidPlan.Retryable())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "query failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "query failed")
}

func TestNewAppErrorWithDetails(t *testing.T) {
	err := NewAppErrorWithDetails(ErrCodeValidationInvalidPlan, "bad request", nil, map[string]any{
		"plan_type": "unknown plan",
	})

	assert.Equal(t, ErrCodeValidationInvalidPlan, err.Code)
	assert.Equal(t, "unknown plan", err.Details["plan_type"])
}
