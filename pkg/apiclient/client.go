package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"github.com/tidwall/gjson"
)

const (
	// CSRFCookie is set by the backend on login and echoed back on every call.
	CSRFCookie = "csrf_access_token"
	// CSRFHeader carries the CSRF cookie's value on outbound requests.
	CSRFHeader = "X-CSRF-TOKEN"

	logoutFailedMessage = "Failed to log you out, please refresh"
)

// Client talks to the portal backend. The zero value is not usable, build
// one with New.
type Client struct {
	// BaseURL is used unless the session store holds an override.
	BaseURL string
	// Store supplies the bearer tokens and is cleared by the default
	// cascade.
	Store      *session.Store
	HTTPClient *http.Client
	Notifier   notify.Notifier
	Logger     *slog.Logger

	// DisableInfoNotices and DisableErrorNotices switch the pipeline's
	// notices off for every call.
	DisableInfoNotices  bool
	DisableErrorNotices bool

	// OnUnauthorized runs after any 401 not flagged WithoutCascade. When
	// nil the store is cleared directly.
	OnUnauthorized func(ctx context.Context) error

	rateLimit *RateLimitConfig
}

// Option configures a Client built by New.
type Option func(*Client)

// WithHTTPClient sends requests through a copy of hc. hc itself is never
// modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithNotifier sets where pipeline notices go. The default drops them.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.Notifier = n }
}

// WithLogger sets the logger for the pipeline and its logging transport.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithRateLimit paces outbound calls per host.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Client) { c.rateLimit = &cfg }
}

// New returns a client with a cookie jar and a logging transport. store may
// be nil, in which case no auth header is ever sent.
func New(baseURL string, store *session.Store, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil) // only fails on a bad PublicSuffixList

	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Store:   store,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
		},
		Notifier: notify.Nop,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.HTTPClient
	if c.rateLimit != nil {
		hc.Transport = NewRateLimitTransport(hc.Transport, *c.rateLimit)
	}
	hc.Transport = slogx.NewTransport(hc.Transport, c.Logger)
	c.HTTPClient = &hc
	return c
}

// Response is a successful (2xx) response with its body already read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get looks up a gjson path in the body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Message returns the body's "message" string, or "".
func (r *Response) Message() string {
	if m := r.Get("message"); m.Type == gjson.String {
		return m.Str
	}
	return ""
}

type requestOptions struct {
	refresh       bool
	requireAuth   bool
	noInfoNotice  bool
	noErrorNotice bool
	noCascade     bool
	query         url.Values
}

// RequestOption adjusts how a single call moves through the pipeline.
type RequestOption func(*requestOptions)

// Refresh flags the call as a token refresh: the refresh token is sent as
// the bearer instead of the access token.
func Refresh() RequestOption { return func(o *requestOptions) { o.refresh = true } }

// RequireAuth fails the call locally with ErrUnauthorized when no access
// token is held.
func RequireAuth() RequestOption { return func(o *requestOptions) { o.requireAuth = true } }

// WithoutInfoNotice suppresses the success message notice for this call.
func WithoutInfoNotice() RequestOption { return func(o *requestOptions) { o.noInfoNotice = true } }

// WithoutErrorNotice suppresses the error notices for this call. The
// cascading logout still runs.
func WithoutErrorNotice() RequestOption { return func(o *requestOptions) { o.noErrorNotice = true } }

// WithoutCascade keeps a 401 from triggering the cascading logout. The
// logout and refresh calls use it on themselves.
func WithoutCascade() RequestOption { return func(o *requestOptions) { o.noCascade = true } }

// WithQuery appends q to the request URL.
func WithQuery(q url.Values) RequestOption { return func(o *requestOptions) { o.query = q } }

// Get sends a GET through the pipeline.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// PostForm sends a url-encoded form through the pipeline.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, Form(form), out, opts...)
}

// PostJSON sends body encoded as JSON through the pipeline.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, JSON(body), out, opts...)
}

// Do sends one request through the pipeline. On a 2xx, out (if non-nil) is
// decoded from the body. Any other outcome is returned as an *Error after
// notices and the cascading logout have run.
func (c *Client) Do(ctx context.Context, method, path string, body Body, out any, opts ...RequestOption) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.requireAuth && c.accessToken() == "" {
		return nil, ErrUnauthorized
	}

	req, err := c.newRequest(ctx, method, path, body, o)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classify(resp.StatusCode, raw)
		c.handleError(ctx, o, apiErr)
		return nil, apiErr
	}

	r := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}
	if !o.noInfoNotice && !c.DisableInfoNotices && gjson.ValidBytes(raw) {
		notify.Info(ctx, c.Notifier, r.Message())
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return r, fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
		}
	}
	return r, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body Body, o requestOptions) (*http.Request, error) {
	target, err := c.resolve(path, o.query)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		if r, err = body.reader(); err != nil {
			return nil, fmt.Errorf("apiclient: encode body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", body.contentType())
	}

	if bearer := c.bearer(o.refresh); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if csrf := c.csrfToken(req.URL); csrf != "" {
		req.Header.Set(CSRFHeader, csrf)
	}
	return req, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	base := c.BaseURL
	if c.Store != nil {
		if override := c.Store.BaseURL(); override != "" {
			base = strings.TrimSuffix(override, "/")
		}
	}

	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("apiclient: bad url %q: %w", base+path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) accessToken() string {
	if c.Store == nil {
		return ""
	}
	return c.Store.AccessToken()
}

// bearer picks the token to send: the refresh token for refresh calls, the
// access token when a full pair is held, otherwise nothing.
func (c *Client) bearer(refresh bool) string {
	if c.Store == nil {
		return ""
	}
	st := c.Store.Snapshot()
	switch {
	case refresh && st.RefreshToken != "":
		return st.RefreshToken
	case st.AccessToken != "" && st.RefreshToken != "":
		return st.AccessToken
	}
	return ""
}

func (c *Client) csrfToken(u *url.URL) string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) handleError(ctx context.Context, o requestOptions, apiErr *Error) {
	notices := !o.noErrorNotice && !c.DisableErrorNotices
	if notices {
		for _, msg := range apiErr.Messages() {
			notify.Error(ctx, c.Notifier, msg)
		}
	}

	if apiErr.StatusCode != http.StatusUnauthorized || o.noCascade {
		return
	}

	if err := c.cascade(ctx); err != nil {
		c.Logger.WarnContext(ctx, "cascading logout failed", "error", err)
		if notices {
			notify.Error(ctx, c.Notifier, logoutFailedMessage)
		}
	}
}

func (c *Client) cascade(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logout panicked: %v", r)
		}
	}()

	if c.OnUnauthorized != nil {
		return c.OnUnauthorized(ctx)
	}
	if c.Store != nil {
		return c.Store.Clear(ctx)
	}
	return nil
}
