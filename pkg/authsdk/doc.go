/*
Package authsdk is the authentication facade of the portal client.

# Overview

Auth composes the pieces of the auth core into the operations a user
actually performs: logging in and out, changing a password, refreshing the
session, and the MFA and Plex sub-protocols. It owns the side effects that
follow each of them: populating the session store, navigating, and telling
the user what happened.

	store := session.NewStore(session.NewFileStore(path))
	api := apiclient.New("https://portal.example.com", store, apiclient.WithNotifier(n))

	auth := authsdk.New(store, api,
		authsdk.WithNotifier(n),
		authsdk.WithNavigator(nav),
		authsdk.WithMFA(&webauthnx.Orchestrator{API: api, Authenticator: platform}),
		authsdk.WithPlex(&plexauth.Poller{Provider: plexauth.NewClient("Portal"), Launcher: launcher}),
	)

New installs Auth as the API client's cascading logout hook, so any 401 from
any endpoint ends the session.

# Login

	err := auth.Login(ctx, authsdk.LoginRequest{
		Username:   "alice",
		Password:   "s3cret",
		RememberMe: true,
		Redirect:   "/admin/users",
	})

On success the store holds the user and both tokens, the navigator is sent to
Redirect (only when it is a path on this site, otherwise the landing route)
and a "Welcome <name>" notice is shown. MFAAuthentication ends in the same
post-authentication handler.

# Logout

Logout never fails from the user's point of view: the server call is best
effort, the tokens are always dropped, and a failing client-side navigation
falls back to a hard redirect. Concurrent calls, such as several requests
hitting a 401 at once, share a single run.

# Token refresh

RefreshToken sends the refresh token to /api/auth/refresh and replaces only
the access token. It reports false, without clearing anything, when the pair
is incomplete or the backend refuses; the caller decides whether that means
logging out. IsAuthenticated tries it once when the access token has
expired. Concurrent refreshes share a single request.

# Notifications

Each failure produces at most one notice. Errors from the API client have
already been shown by the time the facade sees them and are returned as is:

	if err := auth.Login(ctx, req); err != nil {
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindValidation {
			// field errors were shown individually
		}
	}

Cancelled ceremonies and closed Plex windows are logged, never shown as
errors.
*/
package authsdk
