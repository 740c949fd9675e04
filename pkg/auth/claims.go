// Package auth provides the JWT bearer-token glue around the ingestion API.
// Token issuance, users and roles live in an external auth server; the
// engine only verifies signatures via JWKS and scopes requests by the
// project ID claim.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ClaimsKey is the context key for storing JWT claims.
const ClaimsKey contextKey = "claims"

// Claims is the JWT claims structure the engine understands.
type Claims struct {
	jwt.RegisteredClaims
	ProjectID string `json:"pid,omitempty"` // Project UUID
	Email     string `json:"email,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// ProjectIDFromContext extracts the project UUID from claims in the
// context, or uuid.Nil when absent or malformed.
func ProjectIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.ProjectID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.ProjectID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
