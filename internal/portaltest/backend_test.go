package portaltest_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portaltest"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func call(t *testing.T, hc *http.Client, method, target, bearer, body string, header map[string]string) (int, gjson.Result) {
	t.Helper()

	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, gjson.ParseBytes(raw)
}

func TestBackend_TokenRules(t *testing.T) {
	t.Parallel()

	b := portaltest.New(t)
	b.AddUser("alice", "Alice", "hunter2")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}.Encode()
	status, body := call(t, hc, http.MethodPost, b.URL+"/api/auth/login", "", form, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid credentials", body.Get("message").String())

	status, body = call(t, hc, http.MethodPost, b.URL+"/api/auth/login", "", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.True(t, body.Get("errors.username").Exists())

	form = url.Values{"username": {"alice"}, "password": {"hunter2"}}.Encode()
	status, body = call(t, hc, http.MethodPost, b.URL+"/api/auth/login", "", form, nil)
	require.Equal(t, http.StatusOK, status)
	access := body.Get("auth.token").String()
	refresh := body.Get("auth.refresh_token").String()
	require.Equal(t, "Alice", body.Get("auth.user.display_name").String())

	status, body = call(t, hc, http.MethodGet, b.URL+"/api/auth/me", access, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body.Get("user.username").String())

	status, body = call(t, hc, http.MethodPost, b.URL+"/api/auth/refresh", access, "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Wrong token type", body.Get("message").String())

	status, _ = call(t, hc, http.MethodPost, b.URL+"/api/auth/refresh", refresh, "", map[string]string{portaltest.CSRFHeader: "forged"})
	require.Equal(t, http.StatusForbidden, status)

	u, err := url.Parse(b.URL)
	require.NoError(t, err)
	var csrf string
	for _, ck := range jar.Cookies(u) {
		if ck.Name == portaltest.CSRFCookie {
			csrf = ck.Value
		}
	}
	require.NotEmpty(t, csrf)

	status, body = call(t, hc, http.MethodPost, b.URL+"/api/auth/refresh", refresh, "", map[string]string{portaltest.CSRFHeader: csrf})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body.Get("access_token").String())

	expired := b.Token("access", 1, -time.Minute)
	status, body = call(t, hc, http.MethodGet, b.URL+"/api/auth/me", expired, "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Token expired", body.Get("message").String())
}

func TestBackend_LogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()

	b := portaltest.New(t)
	b.AddUser("alice", "Alice", "hunter2")

	refresh := b.Token("refresh", 1, time.Hour)
	access := b.Token("access", 1, time.Hour)

	status, _ := call(t, http.DefaultClient, http.MethodPost, b.URL+"/api/auth/logout", refresh, "", nil)
	require.Equal(t, http.StatusUnauthorized, status, "logout takes the access token")

	status, _ = call(t, http.DefaultClient, http.MethodPost, b.URL+"/api/auth/logout", access, "", nil)
	require.Equal(t, http.StatusOK, status)

	for _, tok := range []string{access, refresh} {
		status, _ := call(t, http.DefaultClient, http.MethodGet, b.URL+"/api/auth/me", tok, "", nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := call(t, http.DefaultClient, http.MethodPost, b.URL+"/api/auth/refresh", refresh, "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Token revoked", body.Get("message").String())
	require.Equal(t, 2, b.Hits("POST /api/auth/logout"))
}
