package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenValidator is implemented by Validator and by test fakes.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Middleware provides HTTP authentication middleware.
type Middleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{validator: validator, logger: logger}
}

// RequireAuth validates the bearer token and requires a project ID claim.
// Claims are stored in the request context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireProject additionally matches the {pid} path parameter against the
// token's project claim. Use for project-scoped routes.
func (m *Middleware) RequireProject(pathParamName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			if claims.ProjectID != r.PathValue(pathParamName) {
				m.writeError(w, http.StatusForbidden, "forbidden", "Project ID mismatch between token and URL")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		m.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, false
	}

	claims, err := m.validator.ValidateToken(token)
	if err != nil {
		m.logger.Debug("Token validation failed", zap.Error(err))
		m.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, false
	}
	if claims.ProjectID == "" {
		m.writeError(w, http.StatusBadRequest, "missing_project_id", "Missing project ID in token")
		return nil, false
	}
	return claims, true
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message}); err != nil {
		m.logger.Error("Failed to write error response", zap.Error(err))
	}
}
