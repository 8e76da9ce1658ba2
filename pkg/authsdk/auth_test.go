package authsdk_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type navigator struct {
	mu        sync.Mutex
	fail      bool
	routes    []string
	redirects []string
}

func (n *navigator) Navigate(_ context.Context, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("router not mounted")
	}
	n.routes = append(n.routes, route)
	return nil
}

func (n *navigator) Redirect(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, route)
}

func (n *navigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

func (n *navigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

type harness struct {
	store   *session.Store
	api     *apiclient.Client
	auth    *authsdk.Auth
	notices *notify.Recorder
	nav     *navigator

	mu   sync.Mutex
	hits map[string]int
}

func (h *harness) Hits(pattern string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[pattern]
}

func (h *harness) TotalHits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.hits {
		total += n
	}
	return total
}

// newHarness serves routes keyed by "METHOD /path" patterns.
func newHarness(t *testing.T, routes map[string]http.HandlerFunc, opts ...authsdk.Option) *harness {
	t.Helper()

	h := &harness{
		store:   session.NewStore(nil),
		notices: &notify.Recorder{},
		nav:     &navigator{},
		hits:    map[string]int{},
	}

	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			h.mu.Lock()
			h.hits[pattern]++
			h.mu.Unlock()
			handler(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h.api = apiclient.New(srv.URL, h.store,
		apiclient.WithNotifier(h.notices),
		apiclient.WithLogger(slogx.Discard()),
	)
	h.auth = authsdk.New(h.store, h.api, append([]authsdk.Option{
		authsdk.WithNotifier(h.notices),
		authsdk.WithNavigator(h.nav),
		authsdk.WithLogger(slogx.Discard()),
	}, opts...)...)
	t.Cleanup(h.auth.Close)
	return h
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

var alice = &session.User{ID: 1, Username: "alice", DisplayName: "Alice"}

func loginAs(t *testing.T, h *harness, access, refresh string) {
	t.Helper()
	require.NoError(t, h.store.SetAuth(context.Background(), session.Auth{User: alice, Token: access, RefreshToken: refresh}))
}
