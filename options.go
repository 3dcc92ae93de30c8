package nebulauth

import (
	"log/slog"
	"net/http"
	"time"

	"nebulauth/auth"
)

// DefaultBaseURL is the production verification API endpoint.
const DefaultBaseURL = "https://api.nebulauth.com/api/v1"

// DefaultTimeout bounds every outbound call when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// ReplayProtectionMode selects the replay policy for outbound requests.
type ReplayProtectionMode = auth.Mode

const (
	// ReplayStrict rejects duplicate nonces and skewed timestamps locally
	// before any network call. This is the zero value.
	ReplayStrict = auth.ModeStrict
	// ReplayLenient attaches nonce and timestamp but leaves enforcement to
	// the server.
	ReplayLenient = auth.ModeLenient
	// ReplayDisabled attaches no replay markers.
	ReplayDisabled = auth.ModeDisabled
)

// Options configures a Client. Every recognized option is enumerated here;
// the struct is copied at construction and never mutated afterwards, so a
// client's credentials cannot change over its lifetime.
//
// At least one of BearerToken or SigningSecret must be set for authenticated
// calls, and SigningSecret is required whenever ReplayProtection is not
// ReplayDisabled.
type Options struct {
	// BaseURL defaults to DefaultBaseURL. A trailing slash is trimmed and
	// the URL path is stripped from signed canonical paths.
	BaseURL string
	// BearerToken authenticates plain bearer-mode calls.
	BearerToken Secret
	// SigningSecret keys the HMAC over the canonical request form.
	SigningSecret Secret
	// ServiceSlug identifies the tenant; sent as a header and included in
	// the canonical form when set.
	ServiceSlug string
	// ReplayProtection defaults to ReplayStrict.
	ReplayProtection ReplayProtectionMode
	// Timeout is the hard deadline applied to each call, default 15s.
	Timeout time.Duration
	// ClockSkew is the strict-mode timestamp tolerance, default ±5m,
	// clamped to ±10m.
	ClockSkew time.Duration
	// NonceCapacity bounds the strict-mode de-duplication store.
	NonceCapacity int
}

// Option mutates the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests. The configured
// timeout is still enforced per call through the request context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClock overrides the time source used for timestamps and replay window
// checks. Primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNonceGenerator overrides how request ids are generated when the caller
// does not supply one.
func WithNonceGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newNonce = gen
		}
	}
}

// WithLogger sets the structured logger used for request outcome logs.
// Secrets are never logged regardless of logger configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
