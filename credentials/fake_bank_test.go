package credentials

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/ruteri/bank-session-client/interfaces"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	status   int
	body     string
	unsigned bool
}

type recordedRequest struct {
	Method    string
	Path      string
	Body      []byte
	Token     string
	Signature string
}

// fakeBank answers every endpoint with a fixed, signed body.
type fakeBank struct {
	t         *testing.T
	server    *httptest.Server
	serverKey *cryptoutils.KeyPair

	mu        sync.Mutex
	responses map[string]fakeResponse
	queued    map[string][]fakeResponse
	requests  []recordedRequest
}

func newFakeBank(t *testing.T) *fakeBank {
	t.Helper()

	serverKey, err := cryptoutils.GenerateKeyPair()
	require.NoError(t, err)
	serverPEM, err := cryptoutils.PublicKeyToPEM(serverKey.Public)
	require.NoError(t, err)

	installation, err := json.Marshal(map[string]any{
		"Response": []any{
			map[string]any{"Id": map[string]any{"id": 1}},
			map[string]any{"Token": map[string]any{
				"id":      2,
				"created": "2024-05-01 10:00:00.000000",
				"updated": "2024-05-01 10:00:00.000000",
				"token":   "install-token",
			}},
			map[string]any{"ServerPublicKey": map[string]any{"server_public_key": string(serverPEM)}},
		},
	})
	require.NoError(t, err)

	bank := &fakeBank{
		t:         t,
		serverKey: serverKey,
		queued:    make(map[string][]fakeResponse),
		responses: map[string]fakeResponse{
			"POST /v1/installation":   {status: http.StatusOK, body: string(installation)},
			"POST /v1/device-server":  {status: http.StatusOK, body: `{"Response":[{"Id":{"id":42}}]}`},
			"POST /v1/session-server": {status: http.StatusOK, body: sessionBody("session-token", 77)},
			"GET /v1/user":            {status: http.StatusOK, body: userBody},
		},
	}
	bank.server = httptest.NewServer(bank)
	t.Cleanup(bank.server.Close)
	return bank
}

func sessionBody(token string, ownerID int64) string {
	body, _ := json.Marshal(map[string]any{
		"Response": []any{
			map[string]any{"Id": map[string]any{"id": 3}},
			map[string]any{"Token": map[string]any{"id": 4, "token": token}},
			map[string]any{"UserPerson": map[string]any{"id": ownerID, "display_name": "Ada"}},
		},
	})
	return string(body)
}

const userBody = `{"Response":[{"UserPerson":{"id":77,"display_name":"Ada"}}]}`

const errorBody = `{"Error":[{"error_description":"Insufficient authentication.","error_description_translated":"Insufficient authentication."}]}`

func (f *fakeBank) set(route string, resp fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[route] = resp
}

// queue answers the next request on route with resp, before falling back to
// the fixed response.
func (f *fakeBank) queue(route string, resp fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[route] = append(f.queued[route], resp)
}

func (f *fakeBank) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeBank) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	route := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Body:      body,
		Token:     r.Header.Get(messenger.ClientAuthenticationHeader),
		Signature: r.Header.Get(messenger.ClientSignatureHeader),
	})
	resp, ok := f.responses[route]
	if queued := f.queued[route]; len(queued) > 0 {
		resp, ok = queued[0], true
		f.queued[route] = queued[1:]
	}
	f.mu.Unlock()

	if !ok {
		resp = fakeResponse{status: http.StatusNotFound, body: errorBody}
	}

	if !resp.unsigned {
		signature, err := cryptoutils.SignBody(f.serverKey.Private, []byte(resp.body))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set(messenger.ServerSignatureHeader, signature)
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeBank) builder() *Builder {
	return NewBuilder(messenger.Config{
		BaseURL:          f.server.URL + "/v1",
		UserAgent:        "credentials-test",
		RateLimitBackoff: time.Millisecond,
		Log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// bootstrapSession walks a fresh credential to Session.
func (f *fakeBank) bootstrapSession(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()
	b := f.builder()

	initialized, err := b.GenerateKey(Uninitialized{})
	require.NoError(t, err)
	installed, err := b.InstallDevice(ctx, initialized)
	require.NoError(t, err)
	registered, err := b.RegisterDevice(ctx, installed, "secret-X", "dev")
	require.NoError(t, err)
	session, err := b.CreateSession(ctx, registered)
	require.NoError(t, err)
	return session
}

// memoryStore is an in-memory CredentialStore.
type memoryStore struct {
	mu     sync.Mutex
	record *interfaces.CredentialRecord
	saves  []*interfaces.CredentialRecord
}

func (s *memoryStore) Load(ctx context.Context) (*interfaces.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, interfaces.ErrCredentialsNotFound
	}
	record := *s.record
	return &record, nil
}

func (s *memoryStore) Save(ctx context.Context, record *interfaces.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *record
	s.record = &saved
	s.saves = append(s.saves, &saved)
	return nil
}
