package credentials

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapper_FromScratch(t *testing.T) {
	bank := newFakeBank(t)
	store := &memoryStore{}
	bootstrapper := NewBootstrapper(bank.builder(), store, "secret-X", "dev")
	ctx := context.Background()

	start, err := bootstrapper.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Uninitialized{}, start)

	session, err := bootstrapper.Run(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, "session-token", session.SessionToken)
	assert.Equal(t, int64(77), session.OwnerID)

	// one save per transition
	require.Len(t, store.saves, 4)
	assert.Empty(t, store.saves[0].InstallationToken)
	assert.Equal(t, "install-token", store.saves[1].InstallationToken)
	assert.Equal(t, int64(42), store.saves[2].DeviceID)
	assert.Equal(t, "session-token", store.saves[3].SessionToken)

	// a second run resumes from storage and only checks the session
	before := len(bank.recorded())
	resumed, err := bootstrapper.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageUncheckedSession, resumed.Stage())

	again, err := bootstrapper.Run(ctx, resumed)
	require.NoError(t, err)
	assert.Equal(t, session.SessionToken, again.SessionToken)

	requests := bank.recorded()[before:]
	require.Len(t, requests, 1)
	assert.Equal(t, "/v1/user", requests[0].Path)
}

func TestBootstrapper_ExpiredSessionFallsBack(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)
	bank.set("GET /v1/user", fakeResponse{status: http.StatusUnauthorized, body: errorBody})
	bank.set("POST /v1/session-server", fakeResponse{status: http.StatusOK, body: sessionBody("fresh-token", 77)})

	store := &memoryStore{}
	bootstrapper := NewBootstrapper(bank.builder(), store, "secret-X", "dev")

	renewed, err := bootstrapper.Run(context.Background(), session.Unchecked())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", renewed.SessionToken)
	assert.Equal(t, session.Registered, renewed.Registered)

	// the rejected session is never written, only its replacement
	require.Len(t, store.saves, 1)
	assert.Equal(t, "fresh-token", store.saves[0].SessionToken)
	assert.Equal(t, "install-token", store.saves[0].InstallationToken)
	assert.Equal(t, int64(42), store.saves[0].DeviceID)
}

func TestBootstrapper_OutageKeepsStoredRecord(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)

	stored, err := ToRecord(session.Unchecked())
	require.NoError(t, err)
	store := &memoryStore{record: stored}

	unavailable := fakeResponse{status: http.StatusServiceUnavailable, body: errorBody}
	for _, route := range []string{"GET /v1/user", "POST /v1/session-server", "POST /v1/device-server", "POST /v1/installation"} {
		bank.set(route, unavailable)
	}

	bootstrapper := NewBootstrapper(bank.builder(), store, "secret-X", "dev")
	ctx := context.Background()
	before := len(bank.recorded())

	start, err := bootstrapper.Load(ctx)
	require.NoError(t, err)
	_, err = bootstrapper.Run(ctx, start)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, ReasonAPI, buildErr.Reason)
	initialized, ok := buildErr.Stage.(Initialized)
	require.True(t, ok, "expected to stop at Initialized, got %T", buildErr.Stage)
	assert.True(t, session.PrivateKey.Equal(initialized.PrivateKey), "device key must survive")

	paths := []string{}
	for _, req := range bank.recorded()[before:] {
		paths = append(paths, req.Path)
	}
	assert.Equal(t, []string{"/v1/user", "/v1/session-server", "/v1/device-server", "/v1/installation"}, paths)

	assert.Empty(t, store.saves)
	assert.Equal(t, stored, store.record)

	// once the bank is back, a restart resumes from the stored session
	bank.set("GET /v1/user", fakeResponse{status: http.StatusOK, body: userBody})
	start, err = bootstrapper.Load(ctx)
	require.NoError(t, err)
	resumed, err := bootstrapper.Run(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, session.SessionToken, resumed.SessionToken)
	assert.Equal(t, session.DeviceID, resumed.DeviceID)
}

func TestBootstrapper_UsesStoredSecretWithoutConfiguredOne(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)
	bank.set("GET /v1/user", fakeResponse{status: http.StatusUnauthorized, body: errorBody})
	bank.queue("POST /v1/session-server", fakeResponse{status: http.StatusBadRequest, body: errorBody})

	store := &memoryStore{}
	bootstrapper := NewBootstrapper(bank.builder(), store, "", "dev")
	before := len(bank.recorded())

	renewed, err := bootstrapper.Run(context.Background(), session.Unchecked())
	require.NoError(t, err)
	assert.Equal(t, "secret-X", renewed.APISecret)

	requests := bank.recorded()[before:]
	require.Len(t, requests, 4)
	assert.Equal(t, "/v1/device-server", requests[2].Path)
	assert.Contains(t, string(requests[2].Body), `"secret-X"`)

	// registration and session are saved, the fallback to Installed is not
	require.Len(t, store.saves, 2)
	assert.Equal(t, "secret-X", store.saves[0].APISecret)
	assert.Empty(t, store.saves[0].SessionToken)
	assert.Equal(t, "session-token", store.saves[1].SessionToken)
}

func TestBootstrapper_EachStageFailsOnce(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)
	bank.set("GET /v1/user", fakeResponse{status: http.StatusUnauthorized, body: errorBody})
	bank.set("POST /v1/session-server", fakeResponse{status: http.StatusBadRequest, body: errorBody})

	bootstrapper := NewBootstrapper(bank.builder(), &memoryStore{}, "secret-X", "dev")
	_, err := bootstrapper.Run(context.Background(), session.Unchecked())

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, StageRegistered, buildErr.Stage.Stage())
	assert.Equal(t, ReasonAPI, buildErr.Reason)

	// check, create (fail), register, create (fail again)
	paths := []string{}
	for _, req := range bank.recorded()[3:] {
		paths = append(paths, req.Path)
	}
	assert.Equal(t, []string{"/v1/user", "/v1/session-server", "/v1/device-server", "/v1/session-server"}, paths)
}

func TestBootstrapper_SignatureFailureIsFatal(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)
	bank.set("GET /v1/user", fakeResponse{status: http.StatusOK, body: `{"Response":[{"UserPerson":{"id":77}}]}`, unsigned: true})

	store := &memoryStore{}
	bootstrapper := NewBootstrapper(bank.builder(), store, "secret-X", "dev")
	_, err := bootstrapper.Run(context.Background(), session.Unchecked())

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, ReasonSignature, buildErr.Reason)
	assert.Empty(t, store.saves)
}

func TestBootstrapper_ChangedSecretRegistersAgain(t *testing.T) {
	bank := newFakeBank(t)
	session := bank.bootstrapSession(t)

	store := &memoryStore{}
	bootstrapper := NewBootstrapper(bank.builder(), store, "secret-Y", "dev")
	before := len(bank.recorded())

	renewed, err := bootstrapper.Run(context.Background(), session.Unchecked())
	require.NoError(t, err)
	assert.Equal(t, "secret-Y", renewed.APISecret)
	assert.Equal(t, session.InstallationToken, renewed.InstallationToken)

	requests := bank.recorded()[before:]
	require.Len(t, requests, 2)
	assert.Equal(t, "/v1/device-server", requests[0].Path)
	assert.Equal(t, "/v1/session-server", requests[1].Path)

	// nothing is written until the device is registered with the new secret
	require.Len(t, store.saves, 2)
	assert.Equal(t, "secret-Y", store.saves[0].APISecret)
	assert.Empty(t, store.saves[0].SessionToken)
	assert.Equal(t, "session-token", store.saves[1].SessionToken)
}

func TestBootstrapper_LoadWithoutStore(t *testing.T) {
	bank := newFakeBank(t)
	bootstrapper := NewBootstrapper(bank.builder(), nil, "secret-X", "dev")

	start, err := bootstrapper.Load(context.Background())
	require.NoError(t, err)

	session, err := bootstrapper.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, StageSession, session.Stage())
}
