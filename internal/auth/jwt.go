package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT payload issued by the attendance API.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenExpiry reads the exp claim of an access token without verifying
// its signature; the API remains the authority on validity. Opaque or
// malformed tokens report ok=false.
func TokenExpiry(token string) (time.Time, bool) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
