// Package dashboard is the client for the NebulAuth management API. Dashboard
// calls are plain authenticated reads and writes: they carry a bearer token
// or session cookie and never go through the signing pipeline.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nebulauth"
	"nebulauth/transport"
)

// DefaultBaseURL is the production dashboard API endpoint.
const DefaultBaseURL = "https://api.nebulauth.com/dashboard"

const sessionCookieName = "mc_session"

// Auth supplies the credential for a dashboard call. Implementations cover
// bearer tokens and session cookies; new variants only need to attach their
// header.
type Auth interface {
	apply(headers http.Header) error
}

// BearerAuth authenticates with an API bearer token.
type BearerAuth struct {
	Token nebulauth.Secret
}

func (a BearerAuth) apply(headers http.Header) error {
	if a.Token.IsZero() {
		return fmt.Errorf("bearer token is empty")
	}
	headers.Set("Authorization", "Bearer "+a.Token.Reveal())
	return nil
}

// SessionAuth authenticates with a dashboard session cookie.
type SessionAuth struct {
	Cookie nebulauth.Secret
}

func (a SessionAuth) apply(headers http.Header) error {
	if a.Cookie.IsZero() {
		return fmt.Errorf("session cookie is empty")
	}
	headers.Set("Cookie", sessionCookieName+"="+a.Cookie.Reveal())
	return nil
}

// Options configures a dashboard client.
type Options struct {
	BaseURL string
	// Auth is the default credential; per-call RequestOptions may override it.
	Auth    Auth
	Timeout time.Duration
}

// Option mutates the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the structured logger used for request outcome logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RequestOptions tunes a single dashboard call.
type RequestOptions struct {
	// Auth overrides the client default for this call.
	Auth Auth
	// Query is appended to the request URL.
	Query url.Values
	// ExtraHeaders are set verbatim on the request.
	ExtraHeaders map[string]string
}

// Client issues bearer- or session-authenticated calls against the dashboard
// API. It is safe for concurrent use.
type Client struct {
	baseURL     string
	defaultAuth Auth
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// New builds a dashboard client.
func New(opts Options, extra ...Option) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "parse base URL", Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "base URL must be absolute"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = nebulauth.DefaultTimeout
	}
	c := &Client{
		baseURL:     base,
		defaultAuth: opts.Auth,
		timeout:     timeout,
		logger:      slog.Default(),
	}
	for _, opt := range extra {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = transport.New(transport.Config{Timeout: timeout})
	}
	return c, nil
}

// Login starts a dashboard session.
func (c *Client) Login(ctx context.Context, payload LoginRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/auth/login", payload, opts)
}

// Logout terminates the current session.
func (c *Client) Logout(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/auth/logout", struct{}{}, opts)
}

// Me returns the authenticated operator.
func (c *Client) Me(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/me", nil, opts)
}

// Customer returns the tenant settings.
func (c *Client) Customer(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/customer", nil, opts)
}

// UpdateCustomer patches tenant settings.
func (c *Client) UpdateCustomer(ctx context.Context, payload CustomerUpdateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPatch, "/customer", payload, opts)
}

// CreateUser adds a team member.
func (c *Client) CreateUser(ctx context.Context, payload TeamMemberCreateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/users", payload, opts)
}

// ListUsers returns the team members.
func (c *Client) ListUsers(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/users", nil, opts)
}

// UpdateUser patches a team member.
func (c *Client) UpdateUser(ctx context.Context, id string, payload TeamMemberUpdateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), payload, opts)
}

// DeleteUser removes a team member.
func (c *Client) DeleteUser(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, opts)
}

// CreateKey mints a license key.
func (c *Client) CreateKey(ctx context.Context, payload KeyCreateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/keys", payload, opts)
}

// BulkCreateKeys mints a batch of keys; format selects the response shape
// (e.g. "json" or "csv").
func (c *Client) BulkCreateKeys(ctx context.Context, payload KeyBatchCreateRequest, format string, opts RequestOptions) (*nebulauth.Response, error) {
	opts.Query = cloneQuery(opts.Query)
	opts.Query.Set("format", format)
	return c.Do(ctx, http.MethodPost, "/keys/batch", payload, opts)
}

// ExtendKeyDurations adds hours to every active key.
func (c *Client) ExtendKeyDurations(ctx context.Context, hours int64, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/keys/extend-duration", map[string]int64{"hours": hours}, opts)
}

// Key returns one key by id.
func (c *Client) Key(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/keys/"+url.PathEscape(id), nil, opts)
}

// ListKeys returns the tenant's keys.
func (c *Client) ListKeys(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/keys", nil, opts)
}

// UpdateKey patches a key.
func (c *Client) UpdateKey(ctx context.Context, id string, payload KeyUpdateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPatch, "/keys/"+url.PathEscape(id), payload, opts)
}

// ResetKeyHWID clears a key's hardware binding.
func (c *Client) ResetKeyHWID(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/keys/"+url.PathEscape(id)+"/reset-hwid", struct{}{}, opts)
}

// DeleteKey revokes a key.
func (c *Client) DeleteKey(ctx context.Context, id string, payload KeyRevokeRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/keys/"+url.PathEscape(id), payload, opts)
}

// ListKeySessions returns active key sessions.
func (c *Client) ListKeySessions(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/key-sessions", nil, opts)
}

// RevokeKeySession terminates one session.
func (c *Client) RevokeKeySession(ctx context.Context, id string, payload RevokeSessionRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/key-sessions/"+url.PathEscape(id), payload, opts)
}

// RevokeAllKeySessions terminates all sessions matching the filter.
func (c *Client) RevokeAllKeySessions(ctx context.Context, payload RevokeAllSessionsRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/key-sessions/revoke-all", payload, opts)
}

// ListCheckpoints returns the checkpoint flows.
func (c *Client) ListCheckpoints(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/checkpoints", nil, opts)
}

// Checkpoint returns one checkpoint flow.
func (c *Client) Checkpoint(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/checkpoints/"+url.PathEscape(id), nil, opts)
}

// CreateCheckpoint adds a checkpoint flow.
func (c *Client) CreateCheckpoint(ctx context.Context, payload CheckpointCreateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/checkpoints", payload, opts)
}

// UpdateCheckpoint patches a checkpoint flow.
func (c *Client) UpdateCheckpoint(ctx context.Context, id string, payload CheckpointUpdateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPatch, "/checkpoints/"+url.PathEscape(id), payload, opts)
}

// DeleteCheckpoint removes a checkpoint flow.
func (c *Client) DeleteCheckpoint(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/checkpoints/"+url.PathEscape(id), nil, opts)
}

// ListBlacklist returns the blacklist entries.
func (c *Client) ListBlacklist(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/blacklist", nil, opts)
}

// CreateBlacklistEntry blocks a value from verification.
func (c *Client) CreateBlacklistEntry(ctx context.Context, payload BlacklistCreateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/blacklist", payload, opts)
}

// DeleteBlacklistEntry removes a blacklist entry.
func (c *Client) DeleteBlacklistEntry(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/blacklist/"+url.PathEscape(id), nil, opts)
}

// CreateAPIToken mints an API token.
func (c *Client) CreateAPIToken(ctx context.Context, payload APITokenCreateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPost, "/api-tokens", payload, opts)
}

// UpdateAPIToken patches an API token.
func (c *Client) UpdateAPIToken(ctx context.Context, id string, payload APITokenUpdateRequest, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodPatch, "/api-tokens/"+url.PathEscape(id), payload, opts)
}

// ListAPITokens returns the tenant's API tokens.
func (c *Client) ListAPITokens(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/api-tokens", nil, opts)
}

// DeleteAPIToken removes an API token.
func (c *Client) DeleteAPIToken(ctx context.Context, id string, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodDelete, "/api-tokens/"+url.PathEscape(id), nil, opts)
}

// AnalyticsSummary returns aggregate verification stats; days limits the
// window when positive.
func (c *Client) AnalyticsSummary(ctx context.Context, days int64, opts RequestOptions) (*nebulauth.Response, error) {
	if days > 0 {
		opts.Query = cloneQuery(opts.Query)
		opts.Query.Set("days", strconv.FormatInt(days, 10))
	}
	return c.Do(ctx, http.MethodGet, "/analytics/summary", nil, opts)
}

// AnalyticsGeo returns verification stats by region.
func (c *Client) AnalyticsGeo(ctx context.Context, days int64, opts RequestOptions) (*nebulauth.Response, error) {
	if days > 0 {
		opts.Query = cloneQuery(opts.Query)
		opts.Query.Set("days", strconv.FormatInt(days, 10))
	}
	return c.Do(ctx, http.MethodGet, "/analytics/geo", nil, opts)
}

// AnalyticsActivity returns the recent verification activity feed.
func (c *Client) AnalyticsActivity(ctx context.Context, opts RequestOptions) (*nebulauth.Response, error) {
	return c.Do(ctx, http.MethodGet, "/analytics/activity", nil, opts)
}

// Do issues one dashboard request. A nil body sends no payload; everything
// else is JSON encoded.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts RequestOptions) (*nebulauth.Response, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: fmt.Sprintf("unsupported dashboard method %q", method)}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "parse request URL", Err: err}
	}
	if len(opts.Query) > 0 {
		values := target.Query()
		for key, list := range opts.Query {
			for _, value := range list {
				values.Add(key, value)
			}
		}
		target.RawQuery = values.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "marshal payload", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var req *http.Request
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), nil)
	}
	if err != nil {
		return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "build request", Err: err}
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range opts.ExtraHeaders {
		req.Header.Set(key, value)
	}
	auth := opts.Auth
	if auth == nil {
		auth = c.defaultAuth
	}
	if auth != nil {
		if err := auth.apply(req.Header); err != nil {
			return nil, &nebulauth.Error{Kind: nebulauth.KindInvalidInput, Message: "apply dashboard auth", Err: err}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := transport.Classify(err)
		c.logger.Warn("dashboard request failed",
			slog.String("endpoint", path),
			slog.String("transport_error", string(kind)))
		return nil, &nebulauth.Error{Kind: nebulauth.KindTransport, Message: fmt.Sprintf("%s failure", kind), Err: err}
	}
	defer resp.Body.Close()
	return nebulauth.DecodeResponse(resp)
}

func cloneQuery(values url.Values) url.Values {
	cloned := url.Values{}
	for key, list := range values {
		for _, value := range list {
			cloned.Add(key, value)
		}
	}
	return cloned
}
