package plexauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://plex.tv"
	DefaultAuthURL = "https://app.plex.tv/auth"
)

// Provider issues a hosted login page and later reports whether the user
// finished logging in there.
type Provider interface {
	RequestHostedLoginURL(ctx context.Context) (loginURL string, pinID int, err error)

	// CheckForAuthToken performs a single check. An empty token means the
	// user has not finished yet.
	CheckForAuthToken(ctx context.Context, pinID int) (string, error)
}

// Client is the Plex pin based Provider.
type Client struct {
	BaseURL    string
	AuthURL    string
	Product    string
	ClientID   string
	HTTPClient *http.Client
}

var _ Provider = (*Client)(nil)

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.BaseURL = strings.TrimSuffix(u, "/") }
}

func WithAuthURL(u string) ClientOption {
	return func(c *Client) { c.AuthURL = u }
}

// WithClientID pins the X-Plex-Client-Identifier. Plex lists every
// identifier as a separate device, so callers should persist it.
func WithClientID(id string) ClientOption {
	return func(c *Client) { c.ClientID = id }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.HTTPClient = hc }
}

func NewClient(product string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: DefaultBaseURL,
		AuthURL: DefaultAuthURL,
		Product: product,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: slogx.NewTransport(nil, nil),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	return c
}

type pin struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
}

func (c *Client) RequestHostedLoginURL(ctx context.Context) (string, int, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v2/pins?strong=true")
	if err != nil {
		return "", 0, err
	}

	var p pin
	if err := json.Unmarshal(body, &p); err != nil {
		return "", 0, fmt.Errorf("plexauth: decode pin: %w", err)
	}
	if p.ID == 0 || p.Code == "" {
		return "", 0, fmt.Errorf("plexauth: incomplete pin in response")
	}
	return c.hostedURL(p.Code), p.ID, nil
}

func (c *Client) hostedURL(code string) string {
	q := url.Values{
		"clientID":                 {c.ClientID},
		"code":                     {code},
		"context[device][product]": {c.Product},
	}
	return c.AuthURL + "#?" + q.Encode()
}

func (c *Client) CheckForAuthToken(ctx context.Context, pinID int) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v2/pins/"+strconv.Itoa(pinID))
	if err != nil {
		return "", err
	}
	// authToken is null until the user has signed in
	return gjson.GetBytes(body, "authToken").String(), nil
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("plexauth: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Product", c.Product)
	req.Header.Set("X-Plex-Client-Identifier", c.ClientID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plexauth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plexauth: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plexauth: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return body, nil
}
