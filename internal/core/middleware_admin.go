package core

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"payflow/internal/types"
)

// adminKeyHeader carries the shared admin key for operational endpoints
// (lifecycle sweeps, forced renewals). These endpoints are invoked by the
// platform scheduler, never by customers.
const adminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware gates operational endpoints behind the configured admin
// API key. The comparison is constant-time to prevent timing attacks.
//
// A missing or mismatched key yields 401 with code "auth_admin_key_invalid".
// The key value itself is never logged; the RequestLogger redacts the header.
func (s *Server) AdminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(adminKeyHeader)
		expected := s.Config.Security.AdminAPIKey.Unmask()

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			s.Logger.Warn("admin key rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthAdminKeyInvalid,
				"a valid admin key is required for this endpoint",
				nil,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}
