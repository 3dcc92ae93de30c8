package nebulauth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebulauth"
	"nebulauth/auth"
)

type capturedRequest struct {
	Header http.Header
	Body   []byte
	Path   string
}

type captureServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []capturedRequest
	status   int
	payload  string
	hits     atomic.Int64
	delay    atomic.Int64
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	cs := &captureServer{status: http.StatusOK, payload: `{"success":true}`}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{Header: r.Header.Clone(), Body: body, Path: r.URL.Path})
		status, payload := cs.status, cs.payload
		cs.mu.Unlock()
		if d := cs.delay.Swap(0); d > 0 {
			time.Sleep(time.Duration(d))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) respond(status int, payload string) {
	cs.mu.Lock()
	cs.status = status
	cs.payload = payload
	cs.mu.Unlock()
}

func (cs *captureServer) last(t *testing.T) capturedRequest {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	require.NotEmpty(t, cs.requests)
	return cs.requests[len(cs.requests)-1]
}

func newTestClient(t *testing.T, opts nebulauth.Options, extra ...nebulauth.Option) *nebulauth.Client {
	t.Helper()
	client, err := nebulauth.NewClient(opts, extra...)
	require.NoError(t, err)
	return client
}

func TestVerifyKeySignsRequest(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
		ServiceSlug:   "acme",
	})

	resp, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{
		Key:  "ABCD-1234",
		HWID: "HWID-9",
	})
	require.NoError(t, err)
	require.True(t, resp.OK)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := server.last(t)
	assert.Equal(t, "/keys/verify", got.Path)
	assert.Equal(t, "Bearer token-1", got.Header.Get("Authorization"))
	assert.Equal(t, "HWID-9", got.Header.Get("X-HWID"))
	assert.Equal(t, "acme", got.Header.Get("X-Service-Slug"))
	assert.Equal(t, auth.BodyDigest(got.Body), got.Header.Get("X-Body-Sha256"))

	nonce := got.Header.Get("X-Nonce")
	timestamp := got.Header.Get("X-Timestamp")
	require.NotEmpty(t, nonce)
	require.NotEmpty(t, timestamp)
	canonical, err := auth.Canonicalize(http.MethodPost, "/keys/verify", timestamp, nonce, "acme", got.Body)
	require.NoError(t, err)
	assert.True(t, auth.VerifySignature(canonical, []byte("secret-1"), got.Header.Get("X-Signature")))
}

func TestVerifyKeyStripsBasePathFromSignature(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL + "/api/v1",
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "/api/v1/keys/verify", got.Path)
	canonical, err := auth.Canonicalize(http.MethodPost, "/keys/verify",
		got.Header.Get("X-Timestamp"), got.Header.Get("X-Nonce"), "", got.Body)
	require.NoError(t, err)
	assert.True(t, auth.VerifySignature(canonical, []byte("secret-1"), got.Header.Get("X-Signature")))
}

func TestVerifyKeyRequiresKey(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
	assert.Zero(t, server.hits.Load())
}

func TestSigningUnavailableBeforeNetwork(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:     server.URL,
		BearerToken: nebulauth.Secret("token-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindSigningUnavailable))
	assert.Zero(t, server.hits.Load())
}

func TestStrictModeRejectsDuplicateRequestID(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	input := nebulauth.VerifyKeyInput{Key: "ABCD-1234", RequestID: "req-1"}
	_, err := client.VerifyKey(context.Background(), input)
	require.NoError(t, err)

	_, err = client.VerifyKey(context.Background(), input)
	require.True(t, nebulauth.IsKind(err, nebulauth.KindReplayProtectionViolation))
	assert.EqualValues(t, 1, server.hits.Load())
}

func TestStrictModeAllowsRequestIDAfterWindow(t *testing.T) {
	server := newCaptureServer(t)
	current := time.Unix(1_700_000_000, 0).UTC()
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
		ClockSkew:     time.Minute,
	}, nebulauth.WithClock(now))

	input := nebulauth.VerifyKeyInput{Key: "ABCD-1234", RequestID: "req-1"}
	_, err := client.VerifyKey(context.Background(), input)
	require.NoError(t, err)

	mu.Lock()
	current = current.Add(2 * time.Minute)
	mu.Unlock()

	_, err = client.VerifyKey(context.Background(), input)
	require.NoError(t, err)
	assert.EqualValues(t, 2, server.hits.Load())
}

func TestLenientModePassesDuplicatesThrough(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:          server.URL,
		BearerToken:      nebulauth.Secret("token-1"),
		SigningSecret:    nebulauth.Secret("secret-1"),
		ReplayProtection: nebulauth.ReplayLenient,
	})

	input := nebulauth.VerifyKeyInput{Key: "ABCD-1234", RequestID: "req-1"}
	_, err := client.VerifyKey(context.Background(), input)
	require.NoError(t, err)
	_, err = client.VerifyKey(context.Background(), input)
	require.NoError(t, err)
	assert.EqualValues(t, 2, server.hits.Load())

	got := server.last(t)
	assert.Equal(t, "req-1", got.Header.Get("X-Nonce"))
	assert.NotEmpty(t, got.Header.Get("X-Timestamp"))
}

func TestTimeoutReleasesNonceForRetry(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
		Timeout:       150 * time.Millisecond,
	})

	server.delay.Store(int64(time.Second))
	input := nebulauth.VerifyKeyInput{Key: "ABCD-1234", RequestID: "req-1"}
	_, err := client.VerifyKey(context.Background(), input)
	require.True(t, nebulauth.IsKind(err, nebulauth.KindTransport))

	// The nonce was never confirmed sent, so the same request id works again.
	_, err = client.VerifyKey(context.Background(), input)
	require.NoError(t, err)
}

func TestDisabledModeOmitsReplayHeaders(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:          server.URL,
		BearerToken:      nebulauth.Secret("token-1"),
		ReplayProtection: nebulauth.ReplayDisabled,
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.NoError(t, err)

	got := server.last(t)
	assert.Empty(t, got.Header.Get("X-Nonce"))
	assert.Empty(t, got.Header.Get("X-Timestamp"))
	assert.Empty(t, got.Header.Get("X-Signature"))
	assert.Equal(t, "Bearer token-1", got.Header.Get("Authorization"))
}

func TestDisabledModeStillSignsWithSecret(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:          server.URL,
		BearerToken:      nebulauth.Secret("token-1"),
		SigningSecret:    nebulauth.Secret("secret-1"),
		ReplayProtection: nebulauth.ReplayDisabled,
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.NoError(t, err)

	got := server.last(t)
	assert.Empty(t, got.Header.Get("X-Nonce"))
	assert.Empty(t, got.Header.Get("X-Timestamp"))
	require.NotEmpty(t, got.Header.Get("X-Signature"))

	canonical, err := auth.Canonicalize(http.MethodPost, "/keys/verify", "", "", "", got.Body)
	require.NoError(t, err)
	assert.True(t, auth.VerifySignature(canonical, []byte("secret-1"), got.Header.Get("X-Signature")))
}

func TestServerErrorCarriesPayload(t *testing.T) {
	server := newCaptureServer(t)
	server.respond(http.StatusForbidden, `{"error":"key revoked"}`)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindServer))

	var apiErr *nebulauth.Error
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, apiErr.Response)
	assert.Equal(t, http.StatusForbidden, apiErr.Response.StatusCode)
	assert.False(t, apiErr.Response.OK)
	data, ok := apiErr.Response.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "key revoked", data["error"])
}

func TestServerErrorPreservesTextBody(t *testing.T) {
	server := newCaptureServer(t)
	server.respond(http.StatusBadGateway, "upstream unavailable")
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	var apiErr *nebulauth.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, nebulauth.KindServer, apiErr.Kind)
	data, ok := apiErr.Response.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "upstream unavailable", data["error"])
}

func TestMalformedSuccessBodyIsDeserializationError(t *testing.T) {
	server := newCaptureServer(t)
	server.respond(http.StatusOK, "not json at all")
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindDeserialization))
}

func TestAuthVerifySendsKeyAndHWID(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.AuthVerify(context.Background(), nebulauth.AuthVerifyInput{Key: "ABCD-1234", HWID: "HWID-9"})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "/auth/verify", got.Path)
	assert.JSONEq(t, `{"key":"ABCD-1234","hwid":"HWID-9"}`, string(got.Body))
}

func TestRedeemKeyResolvesServiceSlug(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
		ServiceSlug:   "acme",
	})

	_, err := client.RedeemKey(context.Background(), nebulauth.RedeemKeyInput{Key: "ABCD-1234", DiscordID: "1122"})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "/keys/redeem", got.Path)
	assert.JSONEq(t, `{"key":"ABCD-1234","discordId":"1122","serviceSlug":"acme"}`, string(got.Body))

	// An explicit slug on the input wins over the client-level one.
	_, err = client.RedeemKey(context.Background(), nebulauth.RedeemKeyInput{
		Key:         "ABCD-1234",
		DiscordID:   "1122",
		ServiceSlug: "other",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"ABCD-1234","discordId":"1122","serviceSlug":"other"}`, string(server.last(t).Body))
}

func TestRedeemKeyRequiresSlug(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.RedeemKey(context.Background(), nebulauth.RedeemKeyInput{Key: "ABCD-1234", DiscordID: "1122"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
	assert.Zero(t, server.hits.Load())
}

func TestResetHWIDRequiresIdentifier(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.ResetHWID(context.Background(), nebulauth.ResetHWIDInput{})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
	assert.Zero(t, server.hits.Load())

	_, err = client.ResetHWID(context.Background(), nebulauth.ResetHWIDInput{DiscordID: "1122"})
	require.NoError(t, err)
	got := server.last(t)
	assert.Equal(t, "/keys/reset-hwid", got.Path)
	assert.JSONEq(t, `{"discordId":"1122"}`, string(got.Body))
}

func TestProofOfPossessionRequiresCredentials(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{
		Key:    "ABCD-1234",
		UsePoP: true,
		PoPKey: nebulauth.Secret("pop-1"),
	})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))

	_, err = client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{
		Key:         "ABCD-1234",
		UsePoP:      true,
		AccessToken: nebulauth.Secret("access-1"),
	})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
	assert.Zero(t, server.hits.Load())
}

func TestProofOfPossessionSignsWithPoPKey(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL: server.URL,
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{
		Key:         "ABCD-1234",
		UsePoP:      true,
		AccessToken: nebulauth.Secret("access-1"),
		PoPKey:      nebulauth.Secret("pop-1"),
	})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "Bearer access-1", got.Header.Get("Authorization"))
	canonical, err := auth.Canonicalize(http.MethodPost, "/keys/verify",
		got.Header.Get("X-Timestamp"), got.Header.Get("X-Nonce"), "", got.Body)
	require.NoError(t, err)
	assert.True(t, auth.VerifySignature(canonical, []byte("pop-1"), got.Header.Get("X-Signature")))
}

func TestBearerModeRequiresToken(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.VerifyKey(context.Background(), nebulauth.VerifyKeyInput{Key: "ABCD-1234"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
	assert.Zero(t, server.hits.Load())
}

func TestNewClientRejectsRelativeBaseURL(t *testing.T) {
	_, err := nebulauth.NewClient(nebulauth.Options{BaseURL: "/api/v1"})
	require.True(t, nebulauth.IsKind(err, nebulauth.KindInvalidInput))
}

func TestPostSendsExtraHeaders(t *testing.T) {
	server := newCaptureServer(t)
	client := newTestClient(t, nebulauth.Options{
		BaseURL:       server.URL,
		BearerToken:   nebulauth.Secret("token-1"),
		SigningSecret: nebulauth.Secret("secret-1"),
	})

	_, err := client.Post(context.Background(), "custom/endpoint", map[string]string{"k": "v"}, nebulauth.PostOptions{
		ExtraHeaders: map[string]string{"X-Trace": "trace-1"},
	})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "/custom/endpoint", got.Path)
	assert.Equal(t, "trace-1", got.Header.Get("X-Trace"))
}
