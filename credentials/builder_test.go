package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapFromScratch(t *testing.T) {
	bank := newFakeBank(t)
	ctx := context.Background()
	b := bank.builder()

	initialized, err := b.GenerateKey(Uninitialized{})
	require.NoError(t, err)
	require.NotNil(t, initialized.PrivateKey)

	installed, err := b.InstallDevice(ctx, initialized)
	require.NoError(t, err)
	assert.Equal(t, "install-token", installed.InstallationToken)
	assert.True(t, installed.ServerPublicKey.Equal(bank.serverKey.Public))
	assert.Same(t, initialized.PrivateKey, installed.PrivateKey)

	registered, err := b.RegisterDevice(ctx, installed, "secret-X", "dev")
	require.NoError(t, err)
	assert.Equal(t, int64(42), registered.DeviceID)
	assert.Equal(t, "secret-X", registered.APISecret)

	session, err := b.CreateSession(ctx, registered)
	require.NoError(t, err)
	assert.Equal(t, "session-token", session.SessionToken)
	assert.Equal(t, int64(77), session.OwnerID)
	assert.Equal(t, registered, session.Registered)

	m := b.Messenger(session)
	assert.Equal(t, "session-token", m.AuthenticationToken())

	requests := bank.recorded()
	require.Len(t, requests, 3)

	// installation carries the public key and no bearer
	var install api.CreateInstallationRequest
	require.NoError(t, json.Unmarshal(requests[0].Body, &install))
	publicKey, err := cryptoutils.ParsePublicKeyPEM([]byte(install.ClientPublicKey))
	require.NoError(t, err)
	assert.True(t, publicKey.Equal(&initialized.PrivateKey.PublicKey))
	assert.Empty(t, requests[0].Token)

	// registration and session creation use the installation token
	for _, req := range requests[1:] {
		assert.Equal(t, "install-token", req.Token, req.Path)
		assert.True(t, cryptoutils.VerifyBody(&initialized.PrivateKey.PublicKey, req.Body, req.Signature), req.Path)
	}

	var device api.CreateDeviceServerRequest
	require.NoError(t, json.Unmarshal(requests[1].Body, &device))
	assert.Equal(t, "secret-X", device.Secret)
	assert.Equal(t, "dev", device.Description)

	var sessionReq api.CreateSessionRequest
	require.NoError(t, json.Unmarshal(requests[2].Body, &sessionReq))
	assert.Equal(t, "secret-X", sessionReq.Secret)
}

func TestReplayAfterDegradeIsIdempotent(t *testing.T) {
	bank := newFakeBank(t)
	ctx := context.Background()
	b := bank.builder()
	session := bank.bootstrapSession(t)

	assertSameRecord := func(t *testing.T, want, got Credential) {
		t.Helper()
		wantRecord, err := ToRecord(want)
		require.NoError(t, err)
		gotRecord, err := ToRecord(got)
		require.NoError(t, err)
		assert.Equal(t, wantRecord, gotRecord)
		assert.Equal(t, want.Stage(), got.Stage())
	}

	t.Run("session", func(t *testing.T) {
		prev, ok := Degrade(session)
		require.True(t, ok)
		replayed, err := b.CreateSession(ctx, prev.(Registered))
		require.NoError(t, err)
		assertSameRecord(t, session, replayed)
	})

	t.Run("registered", func(t *testing.T) {
		prev, ok := Degrade(session.Registered)
		require.True(t, ok)
		replayed, err := b.RegisterDevice(ctx, prev.(Installed), "secret-X", "dev")
		require.NoError(t, err)
		assertSameRecord(t, session.Registered, replayed)
	})

	t.Run("installed", func(t *testing.T) {
		prev, ok := Degrade(session.Installed)
		require.True(t, ok)
		replayed, err := b.InstallDevice(ctx, prev.(Initialized))
		require.NoError(t, err)
		assertSameRecord(t, session.Installed, replayed)
	})
}

func TestDegrade(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)

	chain := []Credential{session, session.Registered, session.Installed, session.Initialized, Uninitialized{}}
	for i := 0; i < len(chain)-1; i++ {
		prev, ok := Degrade(chain[i])
		require.True(t, ok)
		assert.Equal(t, chain[i+1], prev)
	}

	_, ok := Degrade(Uninitialized{})
	assert.False(t, ok)

	prev, ok := Degrade(session.Unchecked())
	require.True(t, ok)
	assert.Equal(t, session.Registered, prev)
}

func TestCheckSession(t *testing.T) {
	t.Run("live session", func(t *testing.T) {
		bank := newFakeBank(t)
		session := bank.bootstrapSession(t)

		checked, err := bank.builder().CheckSession(context.Background(), session.Unchecked())
		require.NoError(t, err)
		assert.Equal(t, session, checked)

		requests := bank.recorded()
		last := requests[len(requests)-1]
		assert.Equal(t, http.MethodGet, last.Method)
		assert.Equal(t, "session-token", last.Token)
		assert.Empty(t, last.Signature)
	})

	fallbackCases := []struct {
		name     string
		response fakeResponse
		reason   Reason
	}{
		{
			name:     "error envelope",
			response: fakeResponse{status: http.StatusUnauthorized, body: errorBody},
			reason:   ReasonAPI,
		},
		{
			name:     "different owner",
			response: fakeResponse{status: http.StatusOK, body: `{"Response":[{"UserPerson":{"id":78}}]}`},
			reason:   ReasonResponse,
		},
		{
			name:     "no user",
			response: fakeResponse{status: http.StatusOK, body: `{"Response":[{"UserSomething":{"id":77}}]}`},
			reason:   ReasonResponse,
		},
	}

	for _, tc := range fallbackCases {
		t.Run(tc.name, func(t *testing.T) {
			bank := newFakeBank(t)
			session := bank.bootstrapSession(t)
			bank.set("GET /v1/user", tc.response)

			_, err := bank.builder().CheckSession(context.Background(), session.Unchecked())
			var buildErr *BuildError
			require.True(t, errors.As(err, &buildErr))
			assert.Equal(t, tc.reason, buildErr.Reason)
			assert.Equal(t, session.Unchecked(), buildErr.Stage)
			assert.True(t, buildErr.CanFallBack())
			assert.Equal(t, session.Registered, buildErr.Fallback())
		})
	}

	t.Run("unsigned response never falls back", func(t *testing.T) {
		bank := newFakeBank(t)
		session := bank.bootstrapSession(t)
		bank.set("GET /v1/user", fakeResponse{status: http.StatusOK, body: `{"Response":[{"UserPerson":{"id":77}}]}`, unsigned: true})

		_, err := bank.builder().CheckSession(context.Background(), session.Unchecked())
		var buildErr *BuildError
		require.True(t, errors.As(err, &buildErr))
		assert.Equal(t, ReasonSignature, buildErr.Reason)
		assert.False(t, buildErr.CanFallBack())
	})

	t.Run("transport failure retries at same stage", func(t *testing.T) {
		bank := newFakeBank(t)
		session := bank.bootstrapSession(t)
		bank.server.Close()

		_, err := bank.builder().CheckSession(context.Background(), session.Unchecked())
		var buildErr *BuildError
		require.True(t, errors.As(err, &buildErr))
		assert.Equal(t, ReasonTransport, buildErr.Reason)
		assert.False(t, buildErr.CanFallBack())
		assert.Equal(t, session.Unchecked(), buildErr.Stage)
	})
}

func TestInstallDevice_Failures(t *testing.T) {
	t.Run("error envelope", func(t *testing.T) {
		bank := newFakeBank(t)
		bank.set("POST /v1/installation", fakeResponse{status: http.StatusBadRequest, body: errorBody})
		b := bank.builder()

		initialized, err := b.GenerateKey(Uninitialized{})
		require.NoError(t, err)

		_, err = b.InstallDevice(context.Background(), initialized)
		var apiErr *envelope.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

		var buildErr *BuildError
		require.True(t, errors.As(err, &buildErr))
		assert.Equal(t, initialized, buildErr.Stage)
		assert.False(t, buildErr.CanFallBack(), "the device key is never dropped")
	})

	t.Run("malformed server key", func(t *testing.T) {
		bank := newFakeBank(t)
		bank.set("POST /v1/installation", fakeResponse{status: http.StatusOK, body: `{"Response":[{"Id":{"id":1}},{"Token":{"token":"t"}},{"ServerPublicKey":{"server_public_key":"garbage"}}]}`})
		b := bank.builder()

		initialized, err := b.GenerateKey(Uninitialized{})
		require.NoError(t, err)

		_, err = b.InstallDevice(context.Background(), initialized)
		require.ErrorIs(t, err, cryptoutils.ErrKeyFormat)
	})

	t.Run("missing server key element", func(t *testing.T) {
		bank := newFakeBank(t)
		bank.set("POST /v1/installation", fakeResponse{status: http.StatusOK, body: `{"Response":[{"Id":{"id":1}},{"Token":{"token":"t"}}]}`})
		b := bank.builder()

		initialized, err := b.GenerateKey(Uninitialized{})
		require.NoError(t, err)

		_, err = b.InstallDevice(context.Background(), initialized)
		require.ErrorIs(t, err, envelope.ErrShapeMismatch)
	})
}

func TestRegisterDevice_RejectsEmptySecret(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)

	_, err := bank.builder().RegisterDevice(context.Background(), session.Installed, "", "dev")
	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, ReasonRequest, buildErr.Reason)
	assert.False(t, buildErr.CanFallBack())
}

func TestCreateSession_RequiresTwoTokens(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)
	bank.set("POST /v1/session-server", fakeResponse{status: http.StatusOK, body: `{"Response":[{"Id":{"id":3}}]}`})

	_, err := bank.builder().CreateSession(context.Background(), session.Registered)
	require.ErrorIs(t, err, envelope.ErrShapeMismatch)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, session.Registered, buildErr.Stage)
}
