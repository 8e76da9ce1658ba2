package authsdk

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/plexauth"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/aussiebroadwan/portal/pkg/webauthnx"
	"golang.org/x/sync/singleflight"
)

// Defaults applied by New.
const (
	DefaultLandingRoute = "/admin"
	DefaultLoginRoute   = "/login"
	DefaultLogoutDelay  = 3 * time.Second
)

// Navigator moves the user between views.
type Navigator interface {
	// Navigate performs an in-app transition. It may fail.
	Navigate(ctx context.Context, route string) error

	// Redirect is the hard fallback used when Navigate fails. It must not
	// fail.
	Redirect(route string)
}

// Auth is the authentication facade. Build it with New.
type Auth struct {
	Store     *session.Store
	API       *apiclient.Client
	MFA       *webauthnx.Orchestrator
	Plex      *plexauth.Poller
	Notifier  notify.Notifier
	Navigator Navigator
	Logger    *slog.Logger

	LandingRoute string
	LoginRoute   string

	// LogoutDelay is how long after a password change the forced logout
	// runs.
	LogoutDelay time.Duration

	flight singleflight.Group

	mu            sync.Mutex
	pendingLogout *time.Timer
}

// Option configures the facade built by New.
type Option func(*Auth)

// WithMFA enables the WebAuthn operations.
func WithMFA(o *webauthnx.Orchestrator) Option { return func(a *Auth) { a.MFA = o } }

// WithPlex enables PlexLogin.
func WithPlex(p *plexauth.Poller) Option { return func(a *Auth) { a.Plex = p } }

// WithNotifier sets where the facade's own notices go.
func WithNotifier(n notify.Notifier) Option { return func(a *Auth) { a.Notifier = n } }

// WithNavigator sets how the facade moves the user between routes.
func WithNavigator(n Navigator) Option { return func(a *Auth) { a.Navigator = n } }

// WithLogger sets the facade's logger.
func WithLogger(l *slog.Logger) Option { return func(a *Auth) { a.Logger = l } }

// WithLogoutDelay sets how long ChangePassword waits before logging out.
func WithLogoutDelay(d time.Duration) Option { return func(a *Auth) { a.LogoutDelay = d } }

// WithLandingRoute sets where a login goes when no local redirect is given.
func WithLandingRoute(route string) Option { return func(a *Auth) { a.LandingRoute = route } }

// New builds the facade and installs it as api's cascading logout hook.
func New(store *session.Store, api *apiclient.Client, opts ...Option) *Auth {
	a := &Auth{
		Store:        store,
		API:          api,
		Notifier:     notify.Nop,
		Logger:       slog.Default(),
		LandingRoute: DefaultLandingRoute,
		LoginRoute:   DefaultLoginRoute,
		LogoutDelay:  DefaultLogoutDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	api.OnUnauthorized = a.HandleUnauthorized
	return a
}

// Close stops a pending forced logout.
func (a *Auth) Close() {
	a.cancelPendingLogout()
}

// navigate tries an in-app transition and falls back to a hard redirect.
func (a *Auth) navigate(ctx context.Context, route string) {
	if a.Navigator == nil {
		return
	}
	if err := a.Navigator.Navigate(ctx, route); err != nil {
		a.Logger.WarnContext(ctx, "navigation failed, redirecting", "route", route, "error", err)
		a.Navigator.Redirect(route)
	}
}

// completeLogin is the post-authentication handler shared by every way of
// logging in.
func (a *Auth) completeLogin(ctx context.Context, auth session.Auth, redirect string) error {
	a.cancelPendingLogout()

	if err := a.Store.SetAuth(ctx, auth); err != nil {
		if a.Store.AccessToken() != auth.Token {
			return err
		}
		// Held in memory, so this process is logged in; it will not
		// survive a restart.
		a.Logger.WarnContext(ctx, "session not persisted", "error", err)
	}

	target := a.LandingRoute
	if isLocalPath(redirect) {
		target = redirect
	}
	a.navigate(ctx, target)

	notify.Success(ctx, a.Notifier, "Welcome "+auth.User.Name())
	a.Logger.InfoContext(ctx, "logged in", "user_id", auth.User.ID, "username", auth.User.Username)
	return nil
}

// isLocalPath accepts "/x/y?z" but not "//evil.com", "https://..." or
// "/\evil.com".
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (a *Auth) cancelPendingLogout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingLogout != nil {
		a.pendingLogout.Stop()
		a.pendingLogout = nil
	}
}

func (a *Auth) scheduleLogout(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingLogout != nil {
		a.pendingLogout.Stop()
	}
	a.pendingLogout = time.AfterFunc(a.LogoutDelay, func() {
		if err := a.Logout(ctx); err != nil {
			a.Logger.WarnContext(ctx, "scheduled logout failed", "error", err)
		}
	})
}
