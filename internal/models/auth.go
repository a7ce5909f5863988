package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims represents the JWT claims for a session token
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
