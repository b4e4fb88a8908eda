package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payflow/internal/types"
)

func newTestRequest(method, path, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return r.WithContext(types.WithRequestID(r.Context(), "req-test-1"))
}

func TestJSON_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/plans", "")

	JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/plans/bogus", "")

	Error(w, r, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found_plan", resp.Error.Code)
	assert.Equal(t, "plan not found", resp.Error.Message)
	assert.Equal(t, "req-test-1", resp.Error.RequestID)
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/plans", "")

	inner := types.NewAppError(types.ErrCodeConflictPaymentState, "already reconciled", nil)
	Error(w, r, errors.Join(errors.New("outer"), inner))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestError_GenericErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/plans", "")

	Error(w, r, errors.New("pq: secret internal detail"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret internal detail")

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestDecodeJSON_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/v1/payments", `{"user_id":"u1"}`)

	var dst struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, DecodeJSON(w, r, &dst))
	assert.Equal(t, "u1", dst.UserID)
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"user_id":`},
		{"unknown field", `{"user_id":"u1","bogus":true}`},
		{"multiple values", `{"user_id":"u1"}{"user_id":"u2"}`},
		{"type mismatch", `{"user_id":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := newTestRequest(http.MethodPost, "/v1/payments", tt.body)

			var dst struct {
				UserID string `json:"user_id"`
			}
			err := DecodeJSON(w, r, &dst)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
		})
	}
}
