// Package webauthnx drives the two WebAuthn MFA ceremonies against the portal
// backend: registering a new authenticator and authenticating with one.
//
// Each ceremony is three strictly ordered steps: fetch the challenge options,
// run the local platform ceremony, submit the result. Ceremony state lives on
// the call stack only.
//
// A ceremony the user dismissed is not an error: both Register and
// Authenticate return a nil result and a nil error, and log the cancellation.
package webauthnx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aussiebroadwan/portal/pkg/apiclient"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	registrationPath   = "/api/mfa/registration"
	authenticationPath = "/api/mfa/authentication"
	availablePath      = "/api/mfa/available"
	deregistrationPath = "/api/mfa/deregistration"
)

// API is the subset of *apiclient.Client the orchestrator needs.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	PostJSON(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
}

// Orchestrator runs the MFA ceremonies through API, using Authenticator for
// the local platform step.
type Orchestrator struct {
	API           API
	Authenticator Authenticator

	// Origin is sent with every ceremony result so the backend can check
	// it against the client data.
	Origin string

	Logger *slog.Logger
}

// Credential is the record the backend creates for a registered
// authenticator. Its shape varies between backends, so every field is
// best effort: ID holds numeric and base64url ids alike, and Raw keeps the
// whole body.
type Credential struct {
	ID        string
	Name      string
	CreatedAt string

	Raw json.RawMessage
}

// credentialFrom reads the record leniently. The credential already exists
// server side once the submit succeeded, whatever the body looks like.
func credentialFrom(resp *apiclient.Response, name string) *Credential {
	cred := &Credential{
		ID:        resp.Get("id").String(),
		Name:      resp.Get("name").String(),
		CreatedAt: resp.Get("created_at").String(),
		Raw:       resp.Body,
	}
	if cred.Name == "" {
		cred.Name = name
	}
	return cred
}

// MissingAuthError is returned when the backend accepted an assertion but
// did not hand back a session.
type MissingAuthError struct {
	Message string
}

func (e *MissingAuthError) Error() string {
	if e.Message == "" {
		return "webauthnx: authentication response carried no session"
	}
	return "webauthnx: " + e.Message
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) supported() bool {
	return o.Authenticator != nil && o.Authenticator.Available()
}

// RegistrationOptions fetches the registration challenge and returns it with
// the relying party id removed, wrapped as {"publicKey": ...}.
func (o *Orchestrator) RegistrationOptions(ctx context.Context) ([]byte, error) {
	resp, err := o.API.Get(ctx, registrationPath, nil, apiclient.WithoutInfoNotice())
	if err != nil {
		return nil, fmt.Errorf("webauthnx: registration options: %w", err)
	}
	return normalizeCreation(resp.Body)
}

// normalizeCreation strips the relying party id on every call. The platform
// derives it from the active origin; an absent key is a no-op.
func normalizeCreation(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("webauthnx: registration options are not valid JSON")
	}

	raw, err := wrapPublicKey(raw)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{"publicKey.rp.id", "rp.id"} {
		if raw, err = sjson.DeleteBytes(raw, path); err != nil {
			return nil, fmt.Errorf("webauthnx: strip %s: %w", path, err)
		}
	}
	return raw, nil
}

// wrapPublicKey accepts both the browser shape {"publicKey": {...}} and bare
// options as some servers send them.
func wrapPublicKey(raw []byte) ([]byte, error) {
	if gjson.GetBytes(raw, "publicKey").IsObject() {
		return raw, nil
	}
	return sjson.SetRawBytes([]byte(`{}`), "publicKey", raw)
}

// Register runs the registration ceremony and returns the backend's record
// of the new credential. A cancelled ceremony returns (nil, nil) and nothing
// is posted.
func (o *Orchestrator) Register(ctx context.Context, name string) (*Credential, error) {
	if !o.supported() {
		return nil, ErrUnsupported
	}

	raw, err := o.RegistrationOptions(ctx)
	if err != nil {
		return nil, err
	}

	var creation protocol.CredentialCreation
	if err := json.Unmarshal(raw, &creation); err != nil {
		return nil, fmt.Errorf("webauthnx: decode registration options: %w", err)
	}

	attestation, err := o.Authenticator.Create(ctx, creation)
	if errors.Is(err, ErrCancelled) {
		o.logger().InfoContext(ctx, "mfa registration cancelled", "name", name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resp, err := o.API.PostJSON(ctx, registrationPath, map[string]any{
		"registration": attestation,
		"origin":       o.Origin,
		"name":         name,
	}, nil, apiclient.WithoutInfoNotice())
	if err != nil {
		return nil, fmt.Errorf("webauthnx: submit registration: %w", err)
	}
	return credentialFrom(resp, name), nil
}

// Authenticate runs the authentication ceremony and returns the session the
// backend issued. username may be empty only with autofill. A cancelled
// ceremony returns (nil, nil).
func (o *Orchestrator) Authenticate(ctx context.Context, username string, autofill bool) (*session.Auth, error) {
	if !o.supported() {
		return nil, ErrUnsupported
	}
	if autofill && !o.Authenticator.ConditionalMediationAvailable() {
		return nil, ErrConditionalUnsupported
	}
	if !autofill && username == "" {
		return nil, ErrUsernameRequired
	}

	resp, err := o.API.Get(ctx, authenticationPath, nil,
		apiclient.WithQuery(url.Values{"username": {username}}),
		apiclient.WithoutInfoNotice(),
	)
	if err != nil {
		return nil, fmt.Errorf("webauthnx: authentication options: %w", err)
	}

	raw, err := wrapPublicKey(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webauthnx: authentication options: %w", err)
	}
	var assertion protocol.CredentialAssertion
	if err := json.Unmarshal(raw, &assertion); err != nil {
		return nil, fmt.Errorf("webauthnx: decode authentication options: %w", err)
	}

	result, err := o.Authenticator.Get(ctx, assertion, autofill)
	if errors.Is(err, ErrCancelled) {
		o.logger().InfoContext(ctx, "mfa authentication cancelled", "username", username, "autofill", autofill)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out struct {
		Auth *session.Auth `json:"auth"`
	}
	resp, err = o.API.PostJSON(ctx, authenticationPath, map[string]any{
		"assertion": result,
		"username":  username,
		"origin":    o.Origin,
	}, &out, apiclient.WithoutInfoNotice())
	if err != nil {
		return nil, fmt.Errorf("webauthnx: submit assertion: %w", err)
	}
	if !out.Auth.Valid() {
		return nil, &MissingAuthError{Message: resp.Message()}
	}
	return out.Auth, nil
}

// Available reports whether username has at least one authenticator
// registered.
func (o *Orchestrator) Available(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, ErrUsernameRequired
	}

	var out struct {
		Available bool `json:"mfa_available"`
	}
	if _, err := o.API.PostJSON(ctx, availablePath, map[string]string{"username": username}, &out,
		apiclient.WithoutInfoNotice(),
	); err != nil {
		return false, fmt.Errorf("webauthnx: mfa available: %w", err)
	}
	return out.Available, nil
}

// Deregister removes every authenticator registered for username.
func (o *Orchestrator) Deregister(ctx context.Context, username string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if _, err := o.API.PostJSON(ctx, deregistrationPath, map[string]string{"username": username}, nil,
		apiclient.WithoutInfoNotice(),
	); err != nil {
		return fmt.Errorf("webauthnx: deregister: %w", err)
	}
	return nil
}
