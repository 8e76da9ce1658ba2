package portaltest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

type middleware func(http.Handler) http.Handler

func claimsFromCtx(ctx context.Context) jwt.MapClaims {
	c, _ := ctx.Value(ctxKeyClaims).(jwt.MapClaims)
	return c
}

// requireToken admits requests bearing a valid, unrevoked token of kind
// ("access" or "refresh"). POSTs must also echo the CSRF cookie.
func (b *Backend) requireToken(kind string) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeMessage(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := b.verify(raw)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				writeMessage(w, http.StatusUnauthorized, "Token expired")
				return
			case err != nil:
				writeMessage(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if claims["type"] != kind {
				writeMessage(w, http.StatusUnauthorized, "Wrong token type")
				return
			}
			if jti, _ := claims["jti"].(string); b.isRevoked(jti) {
				writeMessage(w, http.StatusUnauthorized, "Token revoked")
				return
			}

			if r.Method == http.MethodPost {
				if ck, err := r.Cookie(CSRFCookie); err == nil && r.Header.Get(CSRFHeader) != ck.Value {
					writeMessage(w, http.StatusForbidden, "CSRF token mismatch")
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
