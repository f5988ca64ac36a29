package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims represents the OIDC JWT claims issued by the workspace
// identity provider.
type IdentityClaims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	PreferredUsername    string `json:"preferred_username"`
	Name                 string `json:"name"`
}

// UserName returns the stable identifier used to scope chat data: the email
// when present, otherwise the subject claim.
func (c *IdentityClaims) UserName() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
