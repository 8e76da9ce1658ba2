package authsdk

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/plexauth"
)

// PlexLogin runs the delegated Plex login and returns the Plex token. An
// empty token with a nil error means the user closed the window or the
// login timed out; only the latter is shown.
func (a *Auth) PlexLogin(ctx context.Context) (string, error) {
	if a.Plex == nil {
		return "", ErrNotConfigured
	}

	res, err := a.Plex.Login(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			notify.Error(ctx, a.Notifier, msgPlexFailed)
		}
		return "", err
	}

	switch res.Status {
	case plexauth.StatusExpired:
		notify.Error(ctx, a.Notifier, msgPlexTimedOut)
	case plexauth.StatusClosed:
		a.Logger.InfoContext(ctx, "plex login cancelled", "attempts", res.Attempts)
	}
	return res.Token, nil
}
