package authsdk

import (
	"errors"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/webauthnx"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrMissingCredentials is returned before any network call when a
	// required field was left empty.
	ErrMissingCredentials = errors.New("authsdk: username and password are required")

	// ErrNotAuthenticated is returned by operations that need a session
	// when there is none.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")

	// ErrNoSession is returned when the backend answered a login with 2xx
	// but without an auth payload.
	ErrNoSession = errors.New("authsdk: response carried no session")

	// ErrNoAccessToken is returned when a refresh succeeded without handing
	// back a new access token.
	ErrNoAccessToken = errors.New("authsdk: refresh response carried no access token")

	// ErrNotConfigured is returned by MFA and Plex operations on an Auth
	// built without them.
	ErrNotConfigured = errors.New("authsdk: feature not configured")
)

// ============================================================================
// User-facing messages
// ============================================================================

const (
	msgMissingCredentials = "Username and password are required"
	msgNotAuthenticated   = "You need to be logged in to do that"
	msgLoginFailed        = "Login failed"
	msgPasswordChanged    = "Password changed, please log in again"
	msgPasswordFailed     = "Failed to change password"
	msgUnsupported        = "WebAuthn is not supported on this device"
	msgUsernameRequired   = "Username is required"
	msgMFARegistered      = "MFA device registered"
	msgMFAFailed          = "MFA authentication failed"
	msgMFADisabled        = "MFA disabled"
	msgPlexTimedOut       = "Plex login timed out"
	msgPlexFailed         = "Plex login failed"
)

// fromPipeline reports whether err came out of the API client, which has
// already shown whatever the user needs to see. Network failures carry
// nothing to show and stay silent.
func fromPipeline(err error) bool {
	var apiErr *apiclient.Error
	return errors.As(err, &apiErr) || errors.Is(err, apiclient.ErrUnauthorized)
}

// mfaMessage is the notice for a failed MFA operation, or "" when the user
// should not be told.
func mfaMessage(err error) string {
	var missing *webauthnx.MissingAuthError
	switch {
	case err == nil, fromPipeline(err):
		return ""
	case errors.Is(err, webauthnx.ErrConditionalUnsupported):
		// autofill is attempted opportunistically
		return ""
	case errors.Is(err, webauthnx.ErrUnsupported):
		return msgUnsupported
	case errors.Is(err, webauthnx.ErrUsernameRequired):
		return msgUsernameRequired
	case errors.As(err, &missing):
		if missing.Message != "" {
			return missing.Message
		}
		return msgMFAFailed
	default:
		return err.Error()
	}
}
