package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/session"
)

const (
	loginPath          = "/api/auth/login"
	logoutPath         = "/api/auth/logout"
	refreshPath        = "/api/auth/refresh"
	mePath             = "/api/auth/me"
	changePasswordPath = "/api/accounts/change_password"
)

// Login authenticates with a username and password.
func (a *Auth) Login(ctx context.Context, req LoginRequest) error {
	if req.Username == "" || req.Password == "" {
		notify.Error(ctx, a.Notifier, msgMissingCredentials)
		return ErrMissingCredentials
	}

	form := url.Values{
		"username": {req.Username},
		"password": {req.Password},
		"remember": {strconv.FormatBool(req.RememberMe)},
	}

	var out authResponse
	resp, err := a.API.PostForm(ctx, loginPath, form, &out, apiclient.WithoutInfoNotice())
	if err != nil {
		return fmt.Errorf("authsdk: login: %w", err)
	}
	if !out.Auth.Valid() {
		msg := resp.Message()
		if msg == "" {
			msg = msgLoginFailed
		}
		notify.Error(ctx, a.Notifier, msg)
		return fmt.Errorf("%w: %s", ErrNoSession, msg)
	}

	return a.completeLogin(ctx, *out.Auth, req.Redirect)
}

// Logout ends the session. The client side always succeeds; only a failure
// to persist the cleared state is returned. Concurrent calls share one run.
func (a *Auth) Logout(ctx context.Context) error {
	_, err, _ := a.flight.Do("logout", func() (any, error) {
		return nil, a.logout(ctx)
	})
	return err
}

func (a *Auth) logout(ctx context.Context) error {
	user := a.Store.User()

	if a.Store.AccessToken() != "" {
		// Best effort. A 401 here must not cascade back into Logout.
		if _, err := a.API.Do(ctx, http.MethodPost, logoutPath, nil, nil,
			apiclient.WithoutCascade(),
			apiclient.WithoutInfoNotice(),
			apiclient.WithoutErrorNotice(),
		); err != nil {
			a.Logger.WarnContext(ctx, "server logout failed", "error", err)
		}
	}

	clearErr := a.Store.Clear(ctx)
	if clearErr != nil {
		a.Logger.WarnContext(ctx, "cleared session not persisted", "error", clearErr)
	}

	a.navigate(ctx, a.LoginRoute)

	if user != nil {
		notify.Info(ctx, a.Notifier, "Goodbye "+user.Name())
		a.Logger.InfoContext(ctx, "logged out", "user_id", user.ID, "username", user.Username)
	}
	return clearErr
}

// HandleUnauthorized is the cascading logout run by the API client after a
// 401.
func (a *Auth) HandleUnauthorized(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "session rejected by backend")
	return a.Logout(ctx)
}

// ChangePassword changes the current user's password and, on success,
// schedules a logout after LogoutDelay so the new password has to be used.
// Failures are reported generically.
func (a *Auth) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	user := a.Store.User()
	if user == nil || a.Store.AccessToken() == "" {
		notify.Error(ctx, a.Notifier, msgNotAuthenticated)
		return ErrNotAuthenticated
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		notify.Error(ctx, a.Notifier, msgPasswordFailed)
		return ErrMissingCredentials
	}

	form := url.Values{
		"old_password": {req.OldPassword},
		"new_password": {req.NewPassword},
		"username":     {user.Username},
	}
	if _, err := a.API.PostForm(ctx, changePasswordPath, form, nil,
		apiclient.RequireAuth(),
		apiclient.WithoutInfoNotice(),
		apiclient.WithoutErrorNotice(),
	); err != nil {
		notify.Error(ctx, a.Notifier, msgPasswordFailed)
		return fmt.Errorf("authsdk: change password: %w", err)
	}

	notify.Success(ctx, a.Notifier, msgPasswordChanged)
	a.scheduleLogout(ctx)
	return nil
}

// RefreshToken exchanges the refresh token for a new access token. It
// reports false without a network call when either token is missing, and
// false with the error when the backend refuses. Concurrent calls share one
// request.
//
// The refresh call itself never cascades: a 401 from the refresh endpoint
// leaves both tokens in place and the caller decides whether to log out.
// IsAuthenticated simply reports false. A refresh that completes after the
// session was cleared or replaced is discarded and reported as
// session.ErrSessionChanged.
func (a *Auth) RefreshToken(ctx context.Context) (bool, error) {
	v, err, _ := a.flight.Do("refresh", func() (any, error) {
		return a.refresh(ctx)
	})
	ok, _ := v.(bool)
	return ok, err
}

func (a *Auth) refresh(ctx context.Context) (bool, error) {
	st := a.Store.Snapshot()
	if st.AccessToken == "" || st.RefreshToken == "" {
		return false, nil
	}

	var out refreshResponse
	if _, err := a.API.Do(ctx, http.MethodPost, refreshPath, nil, &out,
		apiclient.Refresh(),
		apiclient.WithoutCascade(),
		apiclient.WithoutInfoNotice(),
		apiclient.WithoutErrorNotice(),
	); err != nil {
		return false, fmt.Errorf("authsdk: refresh: %w", err)
	}
	if out.AccessToken == "" {
		return false, ErrNoAccessToken
	}

	err := a.Store.RotateAccessToken(ctx, st.RefreshToken, out.AccessToken, out.User)
	switch {
	case errors.Is(err, session.ErrSessionChanged):
		a.Logger.InfoContext(ctx, "refreshed token discarded, session changed during refresh")
		return false, fmt.Errorf("authsdk: refresh: %w", err)
	case err != nil:
		a.Logger.WarnContext(ctx, "refreshed token not persisted", "error", err)
	}
	return true, nil
}

// IsAuthenticated reports whether there is a usable session, attempting one
// refresh when the access token has expired.
func (a *Auth) IsAuthenticated(ctx context.Context) bool {
	if !a.Store.IsAccessTokenExpired() {
		return true
	}
	ok, err := a.RefreshToken(ctx)
	if err != nil {
		a.Logger.DebugContext(ctx, "refresh failed", "error", err)
		return false
	}
	return ok
}

// Me reloads the current user from the backend and stores it.
func (a *Auth) Me(ctx context.Context) (*session.User, error) {
	var out meResponse
	if _, err := a.API.Get(ctx, mePath, &out, apiclient.RequireAuth(), apiclient.WithoutInfoNotice()); err != nil {
		return nil, fmt.Errorf("authsdk: me: %w", err)
	}
	if out.User == nil {
		return nil, fmt.Errorf("authsdk: me: response carried no user")
	}
	if err := a.Store.SetUser(ctx, out.User); err != nil {
		return out.User, err
	}
	return out.User, nil
}
