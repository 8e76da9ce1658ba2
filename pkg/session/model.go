package session

import (
	"encoding/json"
	"maps"
)

// User is the authenticated user's profile as returned by the backend. It is
// replaced wholesale on every login or refresh; fields this client does not
// know about are kept in Extra so that nothing is lost on a round trip.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Tutorial    bool   `json:"tutorial"`

	Extra map[string]any `json:"-"`
}

var knownUserFields = []string{"id", "username", "display_name", "email", "tutorial"}

// Name is what greetings use: the display name when set, else the username.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Extra = maps.Clone(u.Extra)
	return &c
}

func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownUserFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		p.Extra = raw
	}

	*u = User(p)
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	b, err := json.Marshal(plain(u))
	if err != nil || len(u.Extra) == 0 {
		return b, err
	}

	merged := maps.Clone(u.Extra)
	var known map[string]any
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	maps.Copy(merged, known)
	return json.Marshal(merged)
}

// Auth is the "auth" object the backend returns from a successful password or
// MFA login.
type Auth struct {
	User         *User  `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether the payload carries enough to establish a session.
func (a *Auth) Valid() bool {
	return a != nil && a.Token != "" && a.User != nil
}

// State is everything that survives a restart.
type State struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`

	// BaseURL overrides the configured API host when set.
	BaseURL string `json:"base_url,omitempty"`
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}

// normalize enforces the store invariant: a user is only ever held alongside
// an access token.
func (s State) normalize() State {
	if s.AccessToken == "" {
		s.User = nil
	}
	return s
}
