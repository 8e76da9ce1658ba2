package authsdk

import (
	"context"

	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/webauthnx"
)

// MFARegistration registers a new authenticator under name. A cancelled
// ceremony returns (nil, nil).
func (a *Auth) MFARegistration(ctx context.Context, name string) (*webauthnx.Credential, error) {
	if a.MFA == nil {
		return nil, ErrNotConfigured
	}

	cred, err := a.MFA.Register(ctx, name)
	if err != nil {
		notify.Error(ctx, a.Notifier, mfaMessage(err))
		return nil, err
	}
	if cred != nil {
		notify.Success(ctx, a.Notifier, msgMFARegistered)
	}
	return cred, nil
}

// MFAAuthentication logs in with an authenticator. It reports whether a
// session was established; a cancelled ceremony is (false, nil).
func (a *Auth) MFAAuthentication(ctx context.Context, req MFALoginRequest) (bool, error) {
	if a.MFA == nil {
		return false, ErrNotConfigured
	}

	auth, err := a.MFA.Authenticate(ctx, req.Username, req.Autofill)
	if err != nil {
		notify.Error(ctx, a.Notifier, mfaMessage(err))
		return false, err
	}
	if auth == nil {
		return false, nil
	}
	if err := a.completeLogin(ctx, *auth, req.Redirect); err != nil {
		return false, err
	}
	return true, nil
}

// MFAAvailable reports whether username has MFA set up.
func (a *Auth) MFAAvailable(ctx context.Context, username string) (bool, error) {
	if a.MFA == nil {
		return false, ErrNotConfigured
	}
	ok, err := a.MFA.Available(ctx, username)
	if err != nil {
		notify.Error(ctx, a.Notifier, mfaMessage(err))
	}
	return ok, err
}

// MFADeregister removes MFA from the current user.
func (a *Auth) MFADeregister(ctx context.Context) error {
	if a.MFA == nil {
		return ErrNotConfigured
	}
	user := a.Store.User()
	if user == nil {
		notify.Error(ctx, a.Notifier, msgNotAuthenticated)
		return ErrNotAuthenticated
	}

	if err := a.MFA.Deregister(ctx, user.Username); err != nil {
		notify.Error(ctx, a.Notifier, mfaMessage(err))
		return err
	}
	notify.Success(ctx, a.Notifier, msgMFADisabled)
	return nil
}
