// Package portaltest runs an in-process stand-in for the portal backend:
// password login, token refresh with revocation, the current user, password
// changes and MFA availability. Tokens are real HS256 JWTs so expiry is
// exercised end to end.
package portaltest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CSRFCookie = "csrf_access_token"
	CSRFHeader = "X-CSRF-TOKEN"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

type account struct {
	user     session.User
	password string
	mfa      bool
}

// Backend is a running fake. Build it with New; it shuts down with the test.
type Backend struct {
	URL string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	key []byte

	mu       sync.Mutex
	accounts map[string]*account
	revoked  map[string]bool
	issued   map[string][]string // refresh token ids per subject
	hits     map[string]int
}

func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		key:        randomBytes(32),
		accounts:   map[string]*account{},
		revoked:    map[string]bool{},
		issued:     map[string][]string{},
		hits:       map[string]int{},
	}

	srv := httptest.NewServer(b.routes())
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()
	access := b.requireToken("access")
	refresh := b.requireToken("refresh")

	b.handle(mux, "POST /api/auth/login", http.HandlerFunc(b.login))
	b.handle(mux, "POST /api/auth/logout", access(http.HandlerFunc(b.logout)))
	b.handle(mux, "POST /api/auth/refresh", refresh(http.HandlerFunc(b.refresh)))
	b.handle(mux, "GET /api/auth/me", access(http.HandlerFunc(b.me)))
	b.handle(mux, "POST /api/accounts/change_password", access(http.HandlerFunc(b.changePassword)))
	b.handle(mux, "POST /api/mfa/available", http.HandlerFunc(b.mfaAvailable))
	return mux
}

func (b *Backend) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[pattern]++
		b.mu.Unlock()
		h.ServeHTTP(w, r)
	}))
}

// AddUser registers an account that can log in with password.
func (b *Backend) AddUser(username, displayName, password string) session.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := session.User{ID: len(b.accounts) + 1, Username: username, DisplayName: displayName}
	b.accounts[username] = &account{user: u, password: password}
	return u
}

func (b *Backend) SetMFA(username string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[username]; ok {
		a.mfa = enabled
	}
}

// Hits counts requests to a route pattern such as "POST /api/auth/refresh".
func (b *Backend) Hits(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[pattern]
}

// Password returns the current password of username.
func (b *Backend) Password(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[username]; ok {
		return a.password
	}
	return ""
}

// Token issues a token of kind for userID that expires after ttl. A
// negative ttl yields an already expired token.
func (b *Backend) Token(kind string, userID int, ttl time.Duration) string {
	now := time.Now()
	sub, jti := strconv.Itoa(userID), idx.New().String()
	if kind == "refresh" {
		b.mu.Lock()
		b.issued[sub] = append(b.issued[sub], jti)
		b.mu.Unlock()
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"jti":  jti,
		"type": kind,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}).SignedString(b.key)
	if err != nil {
		panic(err)
	}
	return tok
}

func (b *Backend) verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return claims, err
}

func (b *Backend) isRevoked(jti string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[jti]
}

func (b *Backend) accountByID(id int) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.accounts {
		if a.user.ID == id {
			return a
		}
	}
	return nil
}

// current is the account the request's token was issued to.
func (b *Backend) current(r *http.Request) *account {
	sub, err := claimsFromCtx(r.Context()).GetSubject()
	if err != nil {
		return nil
	}
	id, err := strconv.Atoi(sub)
	if err != nil {
		return nil
	}
	return b.accountByID(id)
}

// ============================================================================
// Handlers
// ============================================================================

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	fields := map[string][]string{}
	if username == "" {
		fields["username"] = []string{"Username is required"}
	}
	if password == "" {
		fields["password"] = []string{"Password is required"}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	b.mu.Lock()
	a, ok := b.accounts[username]
	ok = ok && a.password == password
	b.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: hex.EncodeToString(randomBytes(16)), Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": session.Auth{
			User:         &a.user,
			Token:        b.Token("access", a.user.ID, b.AccessTTL),
			RefreshToken: b.Token("refresh", a.user.ID, b.RefreshTTL),
		},
	})
}

// logout revokes the presented access token and every refresh token issued
// to its subject.
func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromCtx(r.Context())
	jti, _ := claims["jti"].(string)
	sub, _ := claims.GetSubject()

	b.mu.Lock()
	b.revoked[jti] = true
	for _, id := range b.issued[sub] {
		b.revoked[id] = true
	}
	delete(b.issued, sub)
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Path: "/", MaxAge: -1})
	writeMessage(w, http.StatusOK, "Logged out")
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	a := b.current(r)
	if a == nil {
		writeMessage(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": b.Token("access", a.user.ID, b.AccessTTL),
		"user":         a.user,
	})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	a := b.current(r)
	if a == nil {
		writeMessage(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": a.user})
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	a := b.current(r)
	if a == nil || r.FormValue("username") != a.user.Username {
		writeMessage(w, http.StatusForbidden, "Not your account")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if r.FormValue("old_password") != a.password {
		writeFieldErrors(w, map[string][]string{"old_password": {"Password is incorrect"}})
		return
	}
	if r.FormValue("new_password") == "" {
		writeFieldErrors(w, map[string][]string{"new_password": {"Password is required"}})
		return
	}
	a.password = r.FormValue("new_password")
	writeMessage(w, http.StatusOK, "Password changed")
}

func (b *Backend) mfaAvailable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeFieldErrors(w, map[string][]string{"username": {"Username is required"}})
		return
	}

	b.mu.Lock()
	a, ok := b.accounts[req.Username]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"mfa_available": ok && a.mfa})
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
