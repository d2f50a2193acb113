package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims are the JWT claims cadence cares about. Tokens are issued by
// the auth provider and verified against its JWKS endpoint.
type AuthClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
