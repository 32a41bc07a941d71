package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims represents the JWT claims structure issued by the identity
// provider. Token issuance is out of scope; this core only verifies.
type AccessClaims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated" or "anon"
	SessionID            string `json:"session_id"`
	IsAdmin              bool   `json:"is_admin"`
}

// GetActorID returns the actor ID from the JWT subject claim.
func (c *AccessClaims) GetActorID() string {
	return c.Subject
}
