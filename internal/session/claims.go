package session

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Claims is what the console displays about the signed-in staff member.
// The registrar verifies signatures; the frontend only reads the payload.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

func ReadClaims(accessToken string) (*Claims, error) {
	token, err := jwt.ParseInsecure([]byte(accessToken))
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	claims := new(Claims)
	if sub, ok := token.Subject(); ok {
		claims.Subject = sub
	}
	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	// private claims are optional
	_ = token.Get("email", &claims.Email)
	_ = token.Get("role", &claims.Role)
	if claims.Subject == "" {
		var userID float64
		if err := token.Get("user_id", &userID); err == nil {
			claims.Subject = fmt.Sprintf("%d", int64(userID))
		}
	}

	return claims, nil
}
