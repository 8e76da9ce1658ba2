package webauthnx

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
)

var (
	// ErrUnsupported means no platform credential API is available.
	ErrUnsupported = errors.New("webauthnx: webauthn is not supported on this platform")

	// ErrConditionalUnsupported means autofill was requested but the
	// platform cannot offer credentials inline.
	ErrConditionalUnsupported = errors.New("webauthnx: conditional mediation is not supported on this platform")

	// ErrUsernameRequired is returned for a non-autofill ceremony without a
	// username.
	ErrUsernameRequired = errors.New("webauthnx: username is required")

	// ErrCancelled is what an Authenticator wraps when the user dismissed
	// the platform dialog.
	ErrCancelled = errors.New("webauthnx: ceremony cancelled by user")
)

// Authenticator is the platform credential API: a browser's
// navigator.credentials, an OS passkey provider or a hardware key bridge.
type Authenticator interface {
	Available() bool
	ConditionalMediationAvailable() bool

	// Create runs the registration ceremony. A dismissed dialog must be
	// reported as an error matching ErrCancelled.
	Create(ctx context.Context, opts protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error)

	// Get runs the authentication ceremony. With autofill set the
	// platform offers eligible credentials itself and the allow list in
	// opts may be empty.
	Get(ctx context.Context, opts protocol.CredentialAssertion, autofill bool) (*protocol.CredentialAssertionResponse, error)
}

// Unsupported is the Authenticator for platforms without a credential API,
// such as a headless terminal.
var Unsupported Authenticator = unsupported{}

type unsupported struct{}

func (unsupported) Available() bool                     { return false }
func (unsupported) ConditionalMediationAvailable() bool { return false }

func (unsupported) Create(context.Context, protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error) {
	return nil, ErrUnsupported
}

func (unsupported) Get(context.Context, protocol.CredentialAssertion, bool) (*protocol.CredentialAssertionResponse, error) {
	return nil, ErrUnsupported
}
