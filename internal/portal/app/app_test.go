package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/portal/internal/portaltest"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/stretchr/testify/require"
)

func backend(t *testing.T) *portaltest.Backend {
	t.Helper()
	b := portaltest.New(t)
	b.AddUser("alice", "Alice", "pw")
	return b
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Profile:      "test",
		Store:        StoreMemory,
		LandingRoute: "/admin",
		LogLevel:     "error",
		LogFormat:    "text",
	}
}

func newApp(t *testing.T, cfg Config, opts ...Option) *Application {
	t.Helper()
	a, err := New(context.Background(), cfg, append([]Option{WithLogOutput(io.Discard)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func login(t *testing.T, a *Application) {
	t.Helper()
	err := a.Auth.Login(context.Background(), authsdk.LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
}

func TestNew_WiresFacade(t *testing.T) {
	t.Parallel()

	srv := backend(t)
	rec := &notify.Recorder{}
	a := newApp(t, testConfig(srv.URL), WithNotifier(rec))

	require.NotNil(t, a.Auth.MFA)
	require.NotNil(t, a.Auth.Plex)
	require.Equal(t, srv.URL, a.Auth.MFA.Origin)

	login(t, a)
	require.False(t, a.Store.IsAccessTokenExpired())
	require.Equal(t, []string{"Welcome Alice"}, rec.Filter(notify.LevelSuccess))

	require.NoError(t, a.Auth.Logout(context.Background()))
	require.Empty(t, a.Store.AccessToken())
}

func TestNew_SessionSurvivesRestart(t *testing.T) {
	t.Parallel()

	srv := backend(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  func(Config) Config
	}{
		{"file", func(c Config) Config {
			c.Store = StoreFile
			c.SessionFile = filepath.Join(dir, "session.json")
			return c
		}},
		{"sqlite", func(c Config) Config {
			c.Store = StoreSQLite
			c.DatabaseFile = filepath.Join(dir, "portal.db")
			return c
		}},
		{"redis", func(c Config) Config {
			c.Store = StoreRedis
			c.RedisURL = "redis://" + miniredis.RunT(t).Addr()
			return c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg(testConfig(srv.URL))

			first, err := New(context.Background(), cfg, WithLogOutput(io.Discard))
			require.NoError(t, err)
			login(t, first)
			require.NoError(t, first.Close())

			second := newApp(t, cfg)
			require.False(t, second.Store.IsAccessTokenExpired())
			require.Equal(t, "alice", second.Store.User().Username)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://localhost")
	cfg.Store = "etcd"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)

	cfg = testConfig("http://localhost")
	cfg.Store = StoreRedis
	cfg.RedisURL = "not a url"
	_, err = New(context.Background(), cfg, WithLogOutput(io.Discard))
	require.Error(t, err)
}

func TestWatch_UnsupportedBackendReturns(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig("http://localhost"))
	require.NoError(t, a.Watch(context.Background()))
}

func TestProfiles(t *testing.T) {
	t.Parallel()

	srv := backend(t)
	ctx := context.Background()

	mem := newApp(t, testConfig(srv.URL))
	_, err := mem.Profiles(ctx)
	require.ErrorIs(t, err, ErrProfilesUnsupported)

	cfg := testConfig(srv.URL)
	cfg.Store = StoreSQLite
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "portal.db")
	db := newApp(t, cfg)
	login(t, db)

	names, err := db.Profiles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"test"}, names)
}
