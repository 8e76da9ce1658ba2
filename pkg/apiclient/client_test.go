package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv      *httptest.Server
	store    *session.Store
	client   *apiclient.Client
	notices  *notify.Recorder
	requests atomic.Int32
}

func newFixture(t *testing.T, h http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{store: session.NewStore(nil), notices: &notify.Recorder{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)

	f.client = apiclient.New(f.srv.URL, f.store,
		apiclient.WithNotifier(f.notices),
		apiclient.WithLogger(slogx.Discard()),
	)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestClient_BearerSelection(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		access  string
		refresh string
		opts    []apiclient.RequestOption
		want    string
	}{
		{name: "no tokens", want: ""},
		{name: "access only", access: "A", want: ""},
		{name: "full pair", access: "A", refresh: "R", want: "Bearer A"},
		{name: "refresh call", access: "A", refresh: "R", opts: []apiclient.RequestOption{apiclient.Refresh()}, want: "Bearer R"},
		{name: "refresh call without access", refresh: "R", opts: []apiclient.RequestOption{apiclient.Refresh()}, want: "Bearer R"},
		{name: "refresh call without refresh token", access: "A", opts: []apiclient.RequestOption{apiclient.Refresh()}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(chan string, 1)
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				got <- r.Header.Get("Authorization")
				writeJSON(w, http.StatusOK, `{}`)
			})
			require.NoError(t, f.store.SetAccessToken(ctx, tt.access))
			require.NoError(t, f.store.SetRefreshToken(ctx, tt.refresh))

			_, err := f.client.Get(ctx, "/api/ping", nil, tt.opts...)
			require.NoError(t, err)
			require.Equal(t, tt.want, <-got)
		})
	}
}

func TestClient_EchoesCSRFCookie(t *testing.T) {
	ctx := context.Background()
	headers := make(chan string, 2)

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get(apiclient.CSRFHeader)
		if r.URL.Path == "/api/auth/login" {
			http.SetCookie(w, &http.Cookie{Name: apiclient.CSRFCookie, Value: "csrf-123", Path: "/"})
		}
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := f.client.PostForm(ctx, "/api/auth/login", url.Values{"username": {"alice"}}, nil)
	require.NoError(t, err)
	require.Empty(t, <-headers)

	_, err = f.client.Get(ctx, "/api/auth/me", nil)
	require.NoError(t, err)
	require.Equal(t, "csrf-123", <-headers)
}

func TestClient_InfoNotices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"message":"Saved","id":7}`)
	})

	var out struct {
		ID int `json:"id"`
	}
	resp, err := f.client.PostJSON(ctx, "/api/things", map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	require.Equal(t, 7, out.ID)
	require.Equal(t, "Saved", resp.Message())
	require.Equal(t, []string{"Saved"}, f.notices.Filter(notify.LevelInfo))

	f.notices.Reset()
	_, err = f.client.Get(ctx, "/api/things", nil, apiclient.WithoutInfoNotice())
	require.NoError(t, err)

	f.client.DisableInfoNotices = true
	_, err = f.client.Get(ctx, "/api/things", nil)
	require.NoError(t, err)
	require.Empty(t, f.notices.Notices())
}

func TestClient_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{
			"message": "ignored when errors are present",
			"errors": {"username": ["is required", "is too short"], "email": "is invalid", "empty": []}
		}`)
	})

	_, err := f.client.PostForm(ctx, "/api/users", url.Values{}, nil)

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apiclient.KindValidation, apiErr.Kind)
	require.Equal(t, map[string][]string{
		"username": {"is required", "is too short"},
		"email":    {"is invalid"},
	}, apiErr.Fields)
	require.Equal(t, []string{"is required", "is too short", "is invalid"}, f.notices.Filter(notify.LevelError))
}

func TestClient_MessageAndBareStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		status   int
		body     string
		kind     apiclient.Kind
		wantNote []string
	}{
		{"message", http.StatusConflict, `{"message":"Already exists"}`, apiclient.KindMessage, []string{"Already exists"}},
		{"empty json", http.StatusInternalServerError, `{}`, apiclient.KindStatus, nil},
		{"html", http.StatusBadGateway, `<html>bad gateway</html>`, apiclient.KindStatus, nil},
		{"empty body", http.StatusNotFound, ``, apiclient.KindStatus, nil},
		{"non-string message", http.StatusBadRequest, `{"message":{"nested":true}}`, apiclient.KindStatus, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := f.client.Get(ctx, "/api/x", nil)
			var apiErr *apiclient.Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.kind, apiErr.Kind)
			require.Equal(t, tt.status, apiclient.StatusCode(err))
			require.Equal(t, tt.wantNote, f.notices.Filter(notify.LevelError))
		})
	}
}

func TestClient_ErrorNoticesCanBeDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"nope"}`)
	})

	_, err := f.client.Get(ctx, "/api/x", nil, apiclient.WithoutErrorNotice())
	require.Error(t, err)

	f.client.DisableErrorNotices = true
	_, err = f.client.Get(ctx, "/api/x", nil)
	require.Error(t, err)
	require.Empty(t, f.notices.Notices())
}

func TestClient_UnauthorizedClearsStoreFromAnyEndpoint(t *testing.T) {
	ctx := context.Background()

	for _, path := range []string{"/api/auth/me", "/api/users/3", "/api/webhooks"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, `{"message":"Token expired"}`)
			})
			require.NoError(t, f.store.SetAuth(ctx, session.Auth{User: &session.User{ID: 1, Username: "alice"}, Token: "A", RefreshToken: "R"}))

			_, err := f.client.Get(ctx, path, nil)
			require.True(t, apiclient.IsUnauthorized(err))
			require.Equal(t, session.State{}, f.store.Snapshot())
			require.Equal(t, []string{"Token expired"}, f.notices.Filter(notify.LevelError))
		})
	}
}

func TestClient_UnauthorizedRunsHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})
	require.NoError(t, f.store.SetAuth(ctx, session.Auth{Token: "A", RefreshToken: "R"}))

	var calls atomic.Int32
	f.client.OnUnauthorized = func(context.Context) error {
		calls.Add(1)
		return nil
	}

	_, err := f.client.Get(ctx, "/api/x", nil)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())

	_, err = f.client.Get(ctx, "/api/x", nil, apiclient.WithoutCascade())
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load(), "WithoutCascade must not run the hook")
}

func TestClient_FailedCascadeNotifiesAndReturnsOriginalError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Session revoked"}`)
	})

	f.client.OnUnauthorized = func(context.Context) error { return errors.New("boom") }

	_, err := f.client.Get(ctx, "/api/x", nil)
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apiclient.KindUnauthorized, apiErr.Kind)
	require.Equal(t, "Session revoked", apiErr.Message)
	require.Equal(t, []string{"Session revoked", "Failed to log you out, please refresh"}, f.notices.Filter(notify.LevelError))
}

func TestClient_PanickingCascadeIsContained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})
	f.client.OnUnauthorized = func(context.Context) error { panic("nil navigator") }

	require.NotPanics(t, func() {
		_, err := f.client.Get(ctx, "/api/x", nil)
		require.Error(t, err)
	})
	require.Equal(t, []string{"Failed to log you out, please refresh"}, f.notices.Filter(notify.LevelError))
}

func TestClient_NetworkFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.srv.Close()

	_, err := f.client.Get(ctx, "/api/x", nil)
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apiclient.KindNetwork, apiErr.Kind)
	require.Error(t, errors.Unwrap(apiErr))
	require.Empty(t, f.notices.Notices())
}

func TestClient_RequireAuthRejectsLocally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := f.client.Get(ctx, "/api/auth/me", nil, apiclient.RequireAuth())
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)
	require.True(t, apiclient.IsUnauthorized(err))
	require.Zero(t, f.requests.Load())
}

func TestClient_NilStore(t *testing.T) {
	ctx := context.Background()
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		writeJSON(w, http.StatusUnauthorized, `{}`)
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, nil, apiclient.WithLogger(slogx.Discard()))
	require.NotPanics(t, func() {
		_, err := c.Get(ctx, "/api/x", nil)
		require.Error(t, err)
	})
	require.Empty(t, <-got)
}

func TestClient_BaseURLOverride(t *testing.T) {
	ctx := context.Background()

	hit := make(chan string, 1)
	alt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- r.URL.RequestURI()
		writeJSON(w, http.StatusOK, `{}`)
	}))
	defer alt.Close()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	require.NoError(t, f.store.SetBaseURL(ctx, alt.URL+"/"))

	_, err := f.client.Get(ctx, "/api/mfa/authentication", nil, apiclient.WithQuery(url.Values{"username": {"bob smith"}}))
	require.NoError(t, err)
	require.Equal(t, "/api/mfa/authentication?username=bob+smith", <-hit)
	require.Zero(t, f.requests.Load())
}

func TestClient_DecodeFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"not a number"}`)
	})

	var out struct {
		ID int `json:"id"`
	}
	_, err := f.client.Get(ctx, "/api/x", &out)
	require.ErrorContains(t, err, "apiclient: decode GET /api/x")
}
