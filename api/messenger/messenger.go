package messenger

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/ruteri/bank-session-client/interfaces"
)

// Header names of the signed message protocol.
const (
	// ClientSignatureHeader carries the base64 signature of the request body.
	// It is present if and only if a body is sent.
	ClientSignatureHeader = "X-Client-Signature"

	// ClientAuthenticationHeader carries the bearer token: the installation
	// token before a session exists, the session token afterwards.
	ClientAuthenticationHeader = "X-Client-Authentication"

	// ServerSignatureHeader carries the base64 signature of the response body.
	ServerSignatureHeader = "X-Server-Signature"
)

const (
	// DefaultRateLimitBackoff is the pause between attempts after an HTTP 429.
	DefaultRateLimitBackoff = 3 * time.Second

	defaultTimeout = 30 * time.Second
)

var (
	// ErrSignatureInvalid is returned when a response signature is absent or
	// does not verify. It is never retried.
	ErrSignatureInvalid = errors.New("invalid server signature")

	errRateLimited = errors.New("rate limited")
)

// TransportError is returned when a request could not be sent or its response
// could not be read. Callers may retry.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport failure: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config holds the connection settings shared by every messenger of a client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1".
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient is used for all requests. Defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// RateLimitBackoff is the wait between attempts after an HTTP 429.
	// Defaults to DefaultRateLimitBackoff.
	RateLimitBackoff time.Duration

	// Log receives request and retry logs. Defaults to a discarding logger.
	Log *slog.Logger

	// Sink receives bodies that fail to decode. Optional.
	Sink interfaces.DiagnosticSink
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if c.Log == nil {
		c.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Messenger issues signed requests and verifies signed responses.
//
// A Messenger is not safe for concurrent mutation of its token or server key;
// each client instance owns its own messenger.
type Messenger struct {
	cfg        Config
	log        *slog.Logger
	privateKey *rsa.PrivateKey
	serverKey  *rsa.PublicKey
	token      string
}

// New creates a messenger signing with privateKey. It has no server key and
// no bearer token until the caller sets them.
func New(cfg Config, privateKey *rsa.PrivateKey) *Messenger {
	cfg = cfg.withDefaults()
	return &Messenger{
		cfg:        cfg,
		log:        cfg.Log,
		privateKey: privateKey,
	}
}

// Config returns the messenger's effective configuration.
func (m *Messenger) Config() Config {
	return m.cfg
}

// SetServerPublicKey sets the key responses are verified against.
func (m *Messenger) SetServerPublicKey(key *rsa.PublicKey) {
	m.serverKey = key
}

// ServerPublicKey returns the key responses are verified against, or nil.
func (m *Messenger) ServerPublicKey() *rsa.PublicKey {
	return m.serverKey
}

// SetAuthenticationToken sets the bearer token sent with every request.
func (m *Messenger) SetAuthenticationToken(token string) {
	m.token = token
}

// AuthenticationToken returns the current bearer token.
func (m *Messenger) AuthenticationToken() string {
	return m.token
}

// Sign returns the base64 SHA-256 signature of body under the local private key.
func (m *Messenger) Sign(body []byte) (string, error) {
	return cryptoutils.SignBody(m.privateKey, body)
}

// Verify checks a base64 signature of body against the server public key.
func (m *Messenger) Verify(body []byte, signature string) bool {
	return cryptoutils.VerifyBody(m.serverKey, body, signature)
}

// SendUnverified sends a request without checking the response signature.
// It exists only for the installation call, which predates knowledge of the
// server key.
func (m *Messenger) SendUnverified(ctx context.Context, method, path string, body []byte) (*envelope.Envelope, error) {
	resp, err := m.exchange(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return m.parse(resp)
}

// Send sends a request and verifies the response signature before the body is
// parsed. HTTP 429 responses are retried after a fixed pause until ctx ends.
//
// Send panics if no server public key has been set.
func (m *Messenger) Send(ctx context.Context, method, path string, body []byte) (*envelope.Envelope, error) {
	if m.serverKey == nil {
		panic("messenger: verified send without a server public key")
	}

	resp, err := m.exchange(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	signature := resp.header.Get(ServerSignatureHeader)
	if signature == "" {
		m.log.Error("Response without server signature",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.statusCode))
		return nil, fmt.Errorf("%w: %s %s: missing %s header", ErrSignatureInvalid, method, path, ServerSignatureHeader)
	}
	if !m.Verify(resp.body, signature) {
		m.log.Error("Response signature does not verify",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.statusCode))
		return nil, fmt.Errorf("%w: %s %s", ErrSignatureInvalid, method, path)
	}

	return m.parse(resp)
}

// Do JSON-encodes request (nil means no body), performs a verified send and
// classifies the resulting envelope.
func (m *Messenger) Do(ctx context.Context, method, path string, request any) (*envelope.Payload, error) {
	body, err := encodeBody(request)
	if err != nil {
		return nil, err
	}

	env, err := m.Send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return env.Classify()
}

// DoUnverified is Do for the installation call.
func (m *Messenger) DoUnverified(ctx context.Context, method, path string, request any) (*envelope.Payload, error) {
	body, err := encodeBody(request)
	if err != nil {
		return nil, err
	}

	env, err := m.SendUnverified(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return env.Classify()
}

func encodeBody(request any) ([]byte, error) {
	if request == nil {
		return nil, nil
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return body, nil
}

type rawResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// exchange performs the request, retrying on HTTP 429 with a constant pause
// that ends early when ctx is done.
func (m *Messenger) exchange(ctx context.Context, method, path string, body []byte) (*rawResponse, error) {
	var result *rawResponse

	operation := func() error {
		resp, err := m.roundTrip(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if resp.statusCode == http.StatusTooManyRequests {
			return errRateLimited
		}
		result = resp
		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.log.Warn("Rate limited, retrying",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("wait", wait))
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(m.cfg.RateLimitBackoff), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, errRateLimited) || errors.Is(err, ctx.Err()) {
			return nil, fmt.Errorf("%s %s: gave up after rate limiting: %w", method, path, err)
		}
		return nil, err
	}

	return result, nil
}

// roundTrip sends a single request.
func (m *Messenger) roundTrip(ctx context.Context, method, path string, body []byte) (*rawResponse, error) {
	start := time.Now()

	target, err := m.resolve(path)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Cache-Control", "no-cache")

	// Attach body signature
	if body != nil {
		signature, err := m.Sign(body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(ClientSignatureHeader, signature)
	}

	if m.token != "" {
		req.Header.Set(ClientAuthenticationHeader, m.token)
	}

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	m.log.Debug("API request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return &rawResponse{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       respBody,
	}, nil
}

// resolve turns an endpoint path into a full URL. Relative paths are appended
// to the base URL; paths starting with "/" (such as pagination cursors) are
// resolved against its host. Absolute URLs must point at the same host.
func (m *Messenger) resolve(path string) (string, error) {
	base, err := url.Parse(m.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}

	switch {
	case ref.IsAbs():
		if ref.Host != base.Host {
			return "", fmt.Errorf("refusing to send to foreign host %q", ref.Host)
		}
		return ref.String(), nil
	case strings.HasPrefix(path, "/"):
		return base.ResolveReference(ref).String(), nil
	default:
		return strings.TrimSuffix(m.cfg.BaseURL, "/") + "/" + path, nil
	}
}

func (m *Messenger) parse(resp *rawResponse) (*envelope.Envelope, error) {
	env, err := envelope.Parse(resp.body, m.cfg.Sink)
	if err != nil {
		return nil, err
	}
	env.StatusCode = resp.statusCode
	return env, nil
}
