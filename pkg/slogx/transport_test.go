package slogx_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransport_StampsRequestID(t *testing.T) {
	t.Parallel()

	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: slogx.NewTransport(nil, logger)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	_, err = idx.Parse(<-ids)
	require.NoError(t, err)
	require.Empty(t, req.Header.Get("X-Request-ID"), "caller request must not be mutated")
	require.Contains(t, buf.String(), `"path":"/api/auth/me"`)
	require.Contains(t, buf.String(), `"status":418`)
}

func TestTransport_KeepsExistingRequestID(t *testing.T) {
	t.Parallel()

	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get("X-Request-ID")
	}))
	defer srv.Close()

	client := &http.Client{Transport: slogx.NewTransport(nil, slogx.Discard())}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "upstream-id")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "upstream-id", <-ids)
}

func TestTransport_LogsFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := &http.Client{Transport: slogx.NewTransport(nil, logger)}

	_, err := client.Get("http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	require.Contains(t, buf.String(), "http_request_failed")
}

func TestTransport_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var own, scoped bytes.Buffer
	client := &http.Client{Transport: slogx.NewTransport(nil, slog.New(slog.NewTextHandler(&own, &slog.HandlerOptions{Level: slog.LevelDebug})))}

	ctxLogger := slog.New(slog.NewTextHandler(&scoped, &slog.HandlerOptions{Level: slog.LevelDebug})).With("command", "whoami")
	req, err := http.NewRequestWithContext(slogx.WithContext(context.Background(), ctxLogger), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, own.String())
	require.Contains(t, scoped.String(), "command=whoami")
}
