package session

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// tokenExpiry reads the exp claim of a JWT bearer token without verifying it. The token
// is opaque to this client, so this is for display only and nil when there is no claim.
func tokenExpiry(token string) *time.Time {
	claims := new(jwt.RegisteredClaims)

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}

	exp := claims.ExpiresAt.Time
	return &exp
}
