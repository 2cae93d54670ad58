package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ned1313/pdf-mirror/internal/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// handleLogin authenticates the admin and returns a JWT token
// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	// Validate inputs
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "missing_credentials", "Username and password are required")
		return
	}

	if err := s.authService.Authenticate(req.Username, req.Password); err != nil {
		s.recordAuthAttempt("failure")
		s.logAuditEvent(r, req.Username, "login", "session", "", false, err.Error(), nil)
		if errors.Is(err, auth.ErrAdminDisabled) {
			respondError(w, http.StatusForbidden, "login_disabled", "Admin login is not configured")
			return
		}
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	// Generate JWT token
	token, jti, expiresAt, err := s.authService.GenerateToken(req.Username)
	if err != nil {
		s.logger.Error("failed to generate token", "error", err)
		respondError(w, http.StatusInternalServerError, "token_error", "Failed to generate token")
		return
	}

	s.recordAuthAttempt("success")
	s.logAuditEvent(r, req.Username, "login", "session", jti, true, "", nil)

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Username:  req.Username,
	})
}

// handleLogout revokes the current session
// POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.authService.Revoke(claims.ID, claims.ExpiresAt.Time)
	s.logAuditEvent(r, claims.Username, "logout", "session", claims.ID, true, "", nil)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// authMiddleware validates JWT tokens and injects the claims into the request context
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "missing_token", "Authorization token required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := s.authService.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				respondError(w, http.StatusUnauthorized, "session_revoked", "Session has been revoked")
				return
			}
			respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext returns the claims stored by authMiddleware
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

func (s *Server) recordAuthAttempt(result string) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(result)
	}
}
