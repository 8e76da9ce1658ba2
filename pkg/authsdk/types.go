package authsdk

import "github.com/aussiebroadwan/portal/pkg/session"

// ============================================================================
// Request Types
// ============================================================================

// LoginRequest is a password login.
type LoginRequest struct {
	Username   string
	Password   string
	RememberMe bool

	// Redirect is where to go after login. Only paths on this site are
	// honoured; anything else falls back to the landing route.
	Redirect string
}

// ChangePasswordRequest changes the current user's password. The username is
// taken from the session.
type ChangePasswordRequest struct {
	OldPassword string
	NewPassword string
}

// MFALoginRequest is a WebAuthn login. Username may be empty only with
// Autofill.
type MFALoginRequest struct {
	Username string
	Autofill bool
	Redirect string
}

// ============================================================================
// Response Types
// ============================================================================

// authResponse is what login and MFA authentication return on success.
type authResponse struct {
	Auth *session.Auth `json:"auth"`
}

// refreshResponse is the body of POST /api/auth/refresh.
type refreshResponse struct {
	AccessToken string        `json:"access_token"`
	User        *session.User `json:"user,omitempty"`
}

// meResponse is the body of GET /api/auth/me.
type meResponse struct {
	User *session.User `json:"user"`
}
