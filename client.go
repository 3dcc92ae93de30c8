// Package nebulauth is the Go client for the NebulAuth license verification
// API. It signs outbound requests with HMAC-SHA256 over a versioned canonical
// form and guards them against replay with per-request nonces and timestamps.
package nebulauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"nebulauth/auth"
	"nebulauth/observability"
	"nebulauth/transport"
)

const (
	headerTimestamp   = "X-Timestamp"
	headerNonce       = "X-Nonce"
	headerSignature   = "X-Signature"
	headerBodySHA256  = "X-Body-Sha256"
	headerServiceSlug = "X-Service-Slug"
	headerHWID        = "X-HWID"
)

// Client talks to the NebulAuth verification API. It is safe for concurrent
// use; configuration is immutable after construction, and the only shared
// state is the strict-mode nonce store owned by this instance.
type Client struct {
	opts       Options
	httpClient *http.Client
	baseURL    string
	basePath   string
	guard      *auth.Guard
	logger     *slog.Logger
	now        func() time.Time
	newNonce   func() string
}

// NewClient validates the options and builds a client. Credential presence is
// checked per call, not here, so a client can be constructed from partial
// configuration and fail with a typed error on first use.
func NewClient(opts Options, extra ...Option) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	normalized := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	parsed, err := url.Parse(normalized)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "parse base URL")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, newError(KindInvalidInput, "base URL must be absolute")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	c := &Client{
		opts:     opts,
		baseURL:  normalized,
		basePath: strings.TrimRight(parsed.Path, "/"),
		logger:   slog.Default(),
		now:      time.Now,
		newNonce: uuid.NewString,
	}
	for _, opt := range extra {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = transport.New(transport.Config{Timeout: opts.Timeout})
	}
	c.guard = auth.NewGuard(
		opts.ReplayProtection,
		opts.ClockSkew,
		opts.NonceCapacity,
		func() time.Time { return c.now() },
		func() string { return c.newNonce() },
	)
	return c, nil
}

// VerifyKeyInput carries the parameters for a key verification call.
type VerifyKeyInput struct {
	// Key is the credential being verified. Required.
	Key string
	// RequestID overrides the generated nonce; it must be unique per request
	// within the replay window.
	RequestID string
	// HWID binds the verification to a hardware fingerprint.
	HWID string
	// UsePoP switches to proof-of-possession auth: AccessToken is sent as
	// the bearer and PoPKey signs the request.
	UsePoP      bool
	AccessToken Secret
	PoPKey      Secret
}

// AuthVerifyInput carries the parameters for a session bootstrap call.
type AuthVerifyInput struct {
	Key       string
	HWID      string
	RequestID string
}

// RedeemKeyInput carries the parameters for a key redemption call.
type RedeemKeyInput struct {
	Key       string
	DiscordID string
	// ServiceSlug overrides the client-level slug; one of the two must be
	// set.
	ServiceSlug string
	RequestID   string
	UsePoP      bool
	AccessToken Secret
	PoPKey      Secret
}

// ResetHWIDInput carries the parameters for a hardware reset call. At least
// one of DiscordID or Key is required.
type ResetHWIDInput struct {
	DiscordID   string
	Key         string
	RequestID   string
	UsePoP      bool
	AccessToken Secret
	PoPKey      Secret
}

// PostOptions tunes a generic signed POST.
type PostOptions struct {
	RequestID    string
	UsePoP       bool
	AccessToken  Secret
	PoPKey       Secret
	ExtraHeaders map[string]string
}

type verifyKeyPayload struct {
	Key       string `json:"key"`
	RequestID string `json:"requestId,omitempty"`
}

type authVerifyPayload struct {
	Key       string `json:"key"`
	HWID      string `json:"hwid,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type redeemKeyPayload struct {
	Key         string `json:"key"`
	DiscordID   string `json:"discordId"`
	ServiceSlug string `json:"serviceSlug"`
	RequestID   string `json:"requestId,omitempty"`
}

type resetHWIDPayload struct {
	DiscordID string `json:"discordId,omitempty"`
	Key       string `json:"key,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// VerifyKey checks a license key against POST /keys/verify.
func (c *Client) VerifyKey(ctx context.Context, input VerifyKeyInput) (*Response, error) {
	if strings.TrimSpace(input.Key) == "" {
		return nil, newError(KindInvalidInput, "key is required")
	}
	opts := PostOptions{
		RequestID:   input.RequestID,
		UsePoP:      input.UsePoP,
		AccessToken: input.AccessToken,
		PoPKey:      input.PoPKey,
	}
	if input.HWID != "" {
		opts.ExtraHeaders = map[string]string{headerHWID: input.HWID}
	}
	return c.post(ctx, "/keys/verify", verifyKeyPayload{Key: input.Key, RequestID: input.RequestID}, opts)
}

// AuthVerify bootstraps a session against POST /auth/verify.
func (c *Client) AuthVerify(ctx context.Context, input AuthVerifyInput) (*Response, error) {
	if strings.TrimSpace(input.Key) == "" {
		return nil, newError(KindInvalidInput, "key is required")
	}
	payload := authVerifyPayload{Key: input.Key, HWID: input.HWID, RequestID: input.RequestID}
	return c.post(ctx, "/auth/verify", payload, PostOptions{RequestID: input.RequestID})
}

// RedeemKey redeems a key for a Discord account against POST /keys/redeem.
func (c *Client) RedeemKey(ctx context.Context, input RedeemKeyInput) (*Response, error) {
	if strings.TrimSpace(input.Key) == "" {
		return nil, newError(KindInvalidInput, "key is required")
	}
	if strings.TrimSpace(input.DiscordID) == "" {
		return nil, newError(KindInvalidInput, "discord id is required")
	}
	slug := input.ServiceSlug
	if slug == "" {
		slug = c.opts.ServiceSlug
	}
	if slug == "" {
		return nil, newError(KindInvalidInput, "service slug is required either in client options or redeem input")
	}
	payload := redeemKeyPayload{
		Key:         input.Key,
		DiscordID:   input.DiscordID,
		ServiceSlug: slug,
		RequestID:   input.RequestID,
	}
	opts := PostOptions{
		RequestID:   input.RequestID,
		UsePoP:      input.UsePoP,
		AccessToken: input.AccessToken,
		PoPKey:      input.PoPKey,
	}
	return c.post(ctx, "/keys/redeem", payload, opts)
}

// ResetHWID clears the hardware binding for a key or Discord account against
// POST /keys/reset-hwid.
func (c *Client) ResetHWID(ctx context.Context, input ResetHWIDInput) (*Response, error) {
	if strings.TrimSpace(input.DiscordID) == "" && strings.TrimSpace(input.Key) == "" {
		return nil, newError(KindInvalidInput, "reset requires at least a discord id or a key")
	}
	payload := resetHWIDPayload{DiscordID: input.DiscordID, Key: input.Key, RequestID: input.RequestID}
	opts := PostOptions{
		RequestID:   input.RequestID,
		UsePoP:      input.UsePoP,
		AccessToken: input.AccessToken,
		PoPKey:      input.PoPKey,
	}
	return c.post(ctx, "/keys/reset-hwid", payload, opts)
}

// Post sends a signed POST to an arbitrary endpoint under the base URL.
func (c *Client) Post(ctx context.Context, endpoint string, payload any, opts PostOptions) (*Response, error) {
	return c.post(ctx, endpoint, payload, opts)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, opts PostOptions) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "marshal payload")
	}
	target, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	reservation, err := c.applyAuthHeaders(headers, http.MethodPost, target, body, opts)
	if err != nil {
		if errors.Is(err, auth.ErrNonceReused) || errors.Is(err, auth.ErrTimestampSkew) {
			observability.Client().ReplayRejected()
			return nil, wrapError(KindReplayProtectionViolation, err, "replay guard rejected request")
		}
		return nil, err
	}
	for key, value := range opts.ExtraHeaders {
		headers.Set(key, value)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		reservation.Release()
		return nil, wrapError(KindInvalidInput, err, "build request")
	}
	req.Header = headers

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The call was cancelled or timed out before completion: the
			// nonce was never confirmed sent, so it stays usable on retry.
			reservation.Release()
		} else {
			reservation.Commit()
		}
		kind := transport.Classify(err)
		observability.Client().ObserveRequest(endpoint, "transport_"+string(kind), c.now().Sub(start))
		c.logger.Warn("nebulauth request failed",
			slog.String("endpoint", endpoint),
			slog.String("transport_error", string(kind)))
		return nil, wrapError(KindTransport, err, "%s failure", kind)
	}
	reservation.Commit()
	defer resp.Body.Close()

	result, err := DecodeResponse(resp)
	elapsed := c.now().Sub(start)
	switch {
	case err == nil:
		observability.Client().ObserveRequest(endpoint, "ok", elapsed)
		c.logger.Debug("nebulauth request completed",
			slog.String("endpoint", endpoint),
			slog.Int("status", result.StatusCode),
			slog.Duration("elapsed", elapsed))
		return result, nil
	case IsKind(err, KindServer):
		observability.Client().ObserveRequest(endpoint, "server_error", elapsed)
		c.logger.Warn("nebulauth request rejected by server",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode))
		return nil, err
	default:
		observability.Client().ObserveRequest(endpoint, "decode_error", elapsed)
		return nil, err
	}
}

// applyAuthHeaders resolves the auth mode for one call and attaches the
// bearer and signing headers. The returned reservation is non-nil only when a
// strict-mode nonce was claimed.
func (c *Client) applyAuthHeaders(headers http.Header, method, target string, body []byte, opts PostOptions) (*auth.Reservation, error) {
	if c.opts.ServiceSlug != "" {
		headers.Set(headerServiceSlug, c.opts.ServiceSlug)
	}
	if opts.UsePoP {
		if opts.AccessToken.IsZero() {
			return nil, newError(KindInvalidInput, "access token is required when proof-of-possession is enabled")
		}
		if opts.PoPKey.IsZero() {
			return nil, newError(KindInvalidInput, "proof-of-possession key is required when proof-of-possession is enabled")
		}
		reservation, err := c.applySigningHeaders(headers, method, target, body, opts.PoPKey, opts.RequestID)
		if err != nil {
			return nil, err
		}
		headers.Set("Authorization", "Bearer "+opts.AccessToken.Reveal())
		return reservation, nil
	}

	if c.opts.BearerToken.IsZero() {
		return nil, newError(KindInvalidInput, "bearer token is required for bearer mode")
	}
	headers.Set("Authorization", "Bearer "+c.opts.BearerToken.Reveal())

	if c.opts.ReplayProtection == ReplayDisabled && c.opts.SigningSecret.IsZero() {
		return nil, nil
	}
	if c.opts.SigningSecret.IsZero() {
		return nil, newError(KindSigningUnavailable, "signing secret is required when replay protection is enabled")
	}
	return c.applySigningHeaders(headers, method, target, body, c.opts.SigningSecret, opts.RequestID)
}

// applySigningHeaders stamps, canonicalizes, and signs the request. With
// replay protection disabled the canonical form carries empty replay fields
// and no nonce or timestamp headers are attached.
func (c *Client) applySigningHeaders(headers http.Header, method, target string, body []byte, secret Secret, requestID string) (*auth.Reservation, error) {
	path, err := c.canonicalPath(target)
	if err != nil {
		return nil, err
	}
	stamp, reservation, err := c.guard.Stamp(requestID)
	if err != nil {
		return nil, err
	}
	canonical, err := auth.Canonicalize(method, path, stamp.Timestamp, stamp.Nonce, c.opts.ServiceSlug, body)
	if err != nil {
		reservation.Release()
		return nil, wrapError(KindInvalidInput, err, "canonicalize request")
	}

	if stamp.Nonce != "" {
		headers.Set(headerTimestamp, stamp.Timestamp)
		headers.Set(headerNonce, stamp.Nonce)
	}
	headers.Set(headerSignature, auth.Sign(canonical, []byte(secret.Reveal())))
	headers.Set(headerBodySHA256, auth.BodyDigest(body))
	return reservation, nil
}

// canonicalPath strips the base URL path prefix so signatures are stable
// across deployments that mount the API under different prefixes.
func (c *Client) canonicalPath(target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", wrapError(KindInvalidInput, err, "parse request URL")
	}
	path := parsed.Path
	if c.basePath != "" && strings.HasPrefix(path, c.basePath) {
		path = path[len(c.basePath):]
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

func (c *Client) endpointURL(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", newError(KindInvalidInput, "endpoint is required")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return c.baseURL + trimmed, nil
}
