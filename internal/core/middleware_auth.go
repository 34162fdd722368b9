package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"observatory/internal/auth"
	"observatory/internal/types"
)

// RequireAuth gates a route group behind bearer-token authentication.
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Verifies it via the injected TokenVerifier.
//  3. Injects the token subject into the request context.
//  4. Returns 401 on failure with distinct error codes:
//     - auth_token_missing: no Authorization header or empty Bearer token.
//     - auth_token_expired: token signature is fine but it has expired.
//     - auth_token_invalid: anything else (malformed, forged, wrong issuer).
//
// If the Verifier field on Server is nil (e.g. tests that don't inject one),
// the middleware passes through without authentication.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		subject, err := s.Verifier.Verify(token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		ctx := types.WithSubject(r.Context(), subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError maps a verification failure to the right 401 code.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrTokenExpired) {
		s.Logger.Warn("authentication failed: token expired",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
		return
	}

	s.Logger.Warn("authentication failed: token invalid",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
}

// writeAuthError writes a 401 Unauthorized envelope with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
