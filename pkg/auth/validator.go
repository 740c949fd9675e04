package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Validator checks bearer tokens against the auth server's JWKS.
type Validator struct {
	keyfunc keyfunc.Keyfunc
	verify  bool
}

// NewValidator creates a token validator. When verify is false (local
// development without an auth server) tokens are parsed without signature
// verification.
func NewValidator(ctx context.Context, jwksURL string, verify bool) (*Validator, error) {
	v := &Validator{verify: verify}
	if !verify {
		return v, nil
	}

	if jwksURL == "" {
		return nil, fmt.Errorf("auth verification enabled but no JWKS URL configured")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", jwksURL, err)
	}
	v.keyfunc = kf
	return v, nil
}

// ValidateToken parses a bearer token and returns its claims.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	if !v.verify {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
