package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoExpiry  = errors.New("jwtx: token has no exp claim")
)

// Claims is the subset of the backend's token claims the client cares about.
// The client never holds the signing key, so nothing in here is verified; it
// is only good enough for deciding when to refresh.
type Claims struct {
	Subject   string
	ID        string
	Type      string // "access" or "refresh"
	Fresh     bool
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carries no exp
}

// ParseUnverified decodes the payload segment of a JWT without checking its
// signature. Any token that is not three dot-separated segments with a JSON
// payload is reported as ErrMalformed.
func ParseUnverified(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMalformed
	}

	// MapClaims rather than RegisteredClaims: some backends put a numeric sub
	// in the payload and we still want the expiry out of those.
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var c Claims
	if exp, err := mc.GetExpirationTime(); err != nil {
		return Claims{}, fmt.Errorf("%w: exp: %v", ErrMalformed, err)
	} else if exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}

	switch sub := mc["sub"].(type) {
	case string:
		c.Subject = sub
	case float64:
		c.Subject = fmt.Sprintf("%.0f", sub)
	}
	c.ID, _ = mc["jti"].(string)
	c.Type, _ = mc["type"].(string)
	c.Fresh, _ = mc["fresh"].(bool)

	return c, nil
}

// ExpiredAt reports whether the claims are unusable at now. Tokens without an
// exp claim are treated as expired.
func (c Claims) ExpiredAt(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// Expired is the one-shot form used by the session store: absent, malformed
// and exp-less tokens all count as expired.
func Expired(token string, now time.Time) bool {
	c, err := ParseUnverified(token)
	if err != nil {
		return true
	}
	return c.ExpiredAt(now)
}
