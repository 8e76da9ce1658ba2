package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/plexauth"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/aussiebroadwan/portal/pkg/session/redisstore"
	"github.com/aussiebroadwan/portal/pkg/session/sqlitestore"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/aussiebroadwan/portal/pkg/webauthnx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the session store, the API client and the auth facade
// for one profile.
type Application struct {
	cfg    Config
	logger *slog.Logger

	persister session.Persister
	closers   []io.Closer

	Store *session.Store
	API   *apiclient.Client
	Auth  *authsdk.Auth

	// Platform integrations, replaceable for tests and embedding.
	notifier      notify.Notifier
	navigator     authsdk.Navigator
	launcher      plexauth.Launcher
	authenticator webauthnx.Authenticator
	userAgent     string
	logOutput     io.Writer
}

type Option func(*Application)

func WithNotifier(n notify.Notifier) Option { return func(a *Application) { a.notifier = n } }

func WithNavigator(n authsdk.Navigator) Option { return func(a *Application) { a.navigator = n } }

func WithLauncher(l plexauth.Launcher) Option { return func(a *Application) { a.launcher = l } }

func WithAuthenticator(au webauthnx.Authenticator) Option {
	return func(a *Application) { a.authenticator = au }
}

// WithUserAgent decides between a popup and a tab for the Plex login.
func WithUserAgent(ua string) Option { return func(a *Application) { a.userAgent = ua } }

func WithLogOutput(w io.Writer) Option { return func(a *Application) { a.logOutput = w } }

// New creates an Application and loads the persisted session.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Origin == "" {
		cfg.Origin = cfg.BaseURL
	}

	app := &Application{
		cfg:           cfg,
		notifier:      notify.Nop,
		launcher:      plexauth.BrowserLauncher{},
		authenticator: webauthnx.Unsupported,
	}
	for _, opt := range opts {
		opt(app)
	}

	app.logger = slogx.New(slogx.Config{
		Service: "portal",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  app.logOutput,
	})
	if app.navigator == nil {
		app.navigator = logNavigator{logger: app.logger}
	}
	app.notifier = notify.Multi{app.notifier, notify.Logger{L: app.logger}}

	if err := app.initStore(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.initAuth()

	return app, nil
}

func (app *Application) Config() Config { return app.cfg }

func (app *Application) Logger() *slog.Logger { return app.logger }

// Watch keeps the in-memory session in step with other processes sharing
// the same backend. It returns nil straight away for backends that cannot
// report changes.
func (app *Application) Watch(ctx context.Context) error {
	err := app.Store.Watch(ctx)
	if errors.Is(err, session.ErrWatchUnsupported) {
		app.logger.Debug("session backend cannot be watched", "store", app.cfg.Store)
		return nil
	}
	return err
}

// ErrProfilesUnsupported is returned by Profiles for backends that hold a
// single profile.
var ErrProfilesUnsupported = errors.New("session backend cannot list profiles")

// Profiles lists the profiles with a stored session.
func (app *Application) Profiles(ctx context.Context) ([]string, error) {
	lister, ok := app.persister.(interface {
		Profiles(ctx context.Context) ([]string, error)
	})
	if !ok {
		return nil, ErrProfilesUnsupported
	}
	return lister.Profiles(ctx)
}

// Close stops pending work and releases the session backend.
func (app *Application) Close() error {
	if app.Auth != nil {
		app.Auth.Close()
	}

	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initStore opens the configured backend and hydrates the session from it.
func (app *Application) initStore(ctx context.Context) error {
	switch app.cfg.Store {
	case StoreMemory:
		app.persister = session.NewMemoryStore()

	case StoreFile:
		path := app.cfg.SessionFile
		if path == "" {
			p, err := session.DefaultPath(app.cfg.Profile)
			if err != nil {
				return fmt.Errorf("failed to resolve session file: %w", err)
			}
			path = p
		}
		app.persister = session.NewFileStore(path)

	case StoreSQLite:
		db, err := sqlitestore.Open(app.cfg.DatabaseFile, app.cfg.Profile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.closers = append(app.closers, db)
		app.logger.Debug("database migrations applied", "file", app.cfg.DatabaseFile)
		app.persister = db

	case StoreRedis:
		rdb, err := redisstore.Dial(ctx, app.cfg.RedisURL, app.cfg.Profile, redisstore.WithTTL(app.cfg.SessionTTL))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.closers = append(app.closers, rdb)
		app.persister = rdb
	}

	app.Store = session.NewStore(app.persister, session.WithLogger(app.logger))
	if err := app.Store.Hydrate(ctx); err != nil {
		return err
	}

	app.logger.Debug("session loaded",
		"store", app.cfg.Store,
		"profile", app.cfg.Profile,
		"authenticated", app.Store.AccessToken() != "",
	)
	return nil
}

// initAuth builds the API client and the facade on top of the store.
func (app *Application) initAuth() {
	apiOpts := []apiclient.Option{
		apiclient.WithNotifier(app.notifier),
		apiclient.WithLogger(app.logger),
	}
	if app.cfg.RateLimit > 0 {
		apiOpts = append(apiOpts, apiclient.WithRateLimit(apiclient.RateLimitConfig{
			RequestsPerWindow: app.cfg.RateLimit,
			Window:            app.cfg.RateLimitWindow,
			Burst:             app.cfg.RateLimitBurst,
		}))
	}
	app.API = apiclient.New(app.cfg.BaseURL, app.Store, apiOpts...)
	app.API.DisableInfoNotices = app.cfg.DisableInfoNotices
	app.API.DisableErrorNotices = app.cfg.DisableErrorNotices

	plexOpts := []plexauth.ClientOption{}
	if app.cfg.PlexClientID != "" {
		plexOpts = append(plexOpts, plexauth.WithClientID(app.cfg.PlexClientID))
	}

	authOpts := []authsdk.Option{
		authsdk.WithNotifier(app.notifier),
		authsdk.WithNavigator(app.navigator),
		authsdk.WithLogger(app.logger),
		authsdk.WithMFA(&webauthnx.Orchestrator{
			API:           app.API,
			Authenticator: app.authenticator,
			Origin:        app.cfg.Origin,
			Logger:        app.logger,
		}),
		authsdk.WithPlex(&plexauth.Poller{
			Provider:  plexauth.NewClient(app.cfg.PlexProduct, plexOpts...),
			Launcher:  app.launcher,
			UserAgent: app.userAgent,
			Timeout:   app.cfg.PlexTimeout,
			Logger:    app.logger,
		}),
	}
	if app.cfg.LogoutDelay > 0 {
		authOpts = append(authOpts, authsdk.WithLogoutDelay(app.cfg.LogoutDelay))
	}
	if app.cfg.LandingRoute != "" {
		authOpts = append(authOpts, authsdk.WithLandingRoute(app.cfg.LandingRoute))
	}

	app.Auth = authsdk.New(app.Store, app.API, authOpts...)
}

// logNavigator stands in for a router where there are no views to move
// between.
type logNavigator struct{ logger *slog.Logger }

func (n logNavigator) Navigate(ctx context.Context, route string) error {
	n.logger.DebugContext(ctx, "navigate", "route", route)
	return nil
}

func (n logNavigator) Redirect(route string) {
	n.logger.Debug("redirect", "route", route)
}
