package credentials

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ruteri/bank-session-client/api"
	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/api/messenger"
	"github.com/ruteri/bank-session-client/cryptoutils"
)

var (
	errEmptyToken     = errors.New("server returned an empty token")
	errNoUser         = errors.New("response does not identify a user")
	errOwnerMismatch  = errors.New("session belongs to a different owner")
	errNoServerKey    = errors.New("credential carries no server public key")
	errNoPrivateKey   = errors.New("credential carries no private key")
	errEmptyAPISecret = errors.New("API secret is empty")
)

// Builder performs the stage transitions of the credential bootstrap. Every
// transition creates its own messenger from the connection settings, so a
// Builder holds no credential state and may be shared.
type Builder struct {
	cfg messenger.Config
	log *slog.Logger
}

// NewBuilder creates a Builder talking to the API described by cfg.
func NewBuilder(cfg messenger.Config) *Builder {
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		cfg.Log = log
	}
	return &Builder{cfg: cfg, log: log}
}

// GenerateKey creates a fresh device key. Failure is fatal: there is no
// earlier stage to fall back to.
func (b *Builder) GenerateKey(c Uninitialized) (Initialized, error) {
	keyPair, err := cryptoutils.GenerateKeyPair()
	if err != nil {
		return Initialized{}, newBuildError(c, ReasonKeyGeneration, err)
	}

	b.log.Info("Generated device key", slog.Int("bits", cryptoutils.KeySize))
	return Initialized{PrivateKey: keyPair.Private}, nil
}

// WithPrivateKey starts the chain from a caller-supplied PEM key.
func (b *Builder) WithPrivateKey(c Uninitialized, privateKeyPEM []byte) (Initialized, error) {
	key, err := cryptoutils.ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return Initialized{}, newBuildError(c, ReasonKeyFormat, err)
	}
	return Initialized{PrivateKey: key}, nil
}

// InstallDevice sends the device public key and learns the installation token
// and the server public key.
//
// The response is accepted without signature verification because the server
// key is only known once it has been read from this very response.
func (b *Builder) InstallDevice(ctx context.Context, c Initialized) (Installed, error) {
	if c.PrivateKey == nil {
		return Installed{}, newBuildError(c, ReasonKeyFormat, errNoPrivateKey)
	}

	publicPEM, err := cryptoutils.PublicKeyToPEM(&c.PrivateKey.PublicKey)
	if err != nil {
		return Installed{}, newBuildError(c, ReasonKeyFormat, err)
	}

	m := messenger.New(b.cfg, c.PrivateKey)
	payload, err := m.DoUnverified(ctx, http.MethodPost, api.InstallationPath, api.CreateInstallationRequest{
		ClientPublicKey: string(publicPEM),
	})
	if err != nil {
		return Installed{}, requestFailed(c, err)
	}

	var (
		id        api.ID
		token     api.Token
		serverKey api.ServerPublicKey
	)
	err = envelope.DecodePositional(payload,
		envelope.Key("Id", &id),
		envelope.Key("Token", &token),
		envelope.Key("ServerPublicKey", &serverKey))
	if err != nil {
		return Installed{}, newBuildError(c, ReasonResponse, err)
	}
	if token.Token == "" {
		return Installed{}, newBuildError(c, ReasonResponse, errEmptyToken)
	}

	serverPublicKey, err := cryptoutils.ParsePublicKeyPEM([]byte(serverKey.ServerPublicKey))
	if err != nil {
		return Installed{}, newBuildError(c, ReasonKeyFormat, fmt.Errorf("server public key: %w", err))
	}

	b.log.Warn("Installation response accepted without signature verification",
		slog.Int64("installationID", id.ID))

	return Installed{
		Initialized:       c,
		InstallationToken: token.Token,
		ServerPublicKey:   serverPublicKey,
	}, nil
}

// RegisterDevice binds apiSecret to the installed device. The installation
// token is the bearer and the response is verified with the server key.
func (b *Builder) RegisterDevice(ctx context.Context, c Installed, apiSecret, description string) (Registered, error) {
	if apiSecret == "" {
		return Registered{}, newBuildError(c, ReasonRequest, errEmptyAPISecret)
	}

	m, err := b.verifiedMessenger(c, c.PrivateKey, c.ServerPublicKey, c.InstallationToken)
	if err != nil {
		return Registered{}, err
	}

	payload, err := m.Do(ctx, http.MethodPost, api.DeviceServerPath, api.CreateDeviceServerRequest{
		Description:  description,
		Secret:       apiSecret,
		PermittedIPs: []string{},
	})
	if err != nil {
		return Registered{}, requestFailed(c, err)
	}

	element, err := envelope.DecodeSingle[api.IDResponse](payload)
	if err != nil {
		return Registered{}, newBuildError(c, ReasonResponse, err)
	}
	if element.ID == nil {
		return Registered{}, newBuildError(c, ReasonResponse, fmt.Errorf("%w: Response[0].Id: missing", envelope.ErrShapeMismatch))
	}

	b.log.Info("Registered device", slog.Int64("deviceID", element.ID.ID))

	return Registered{
		Installed: c,
		APISecret: apiSecret,
		DeviceID:  element.ID.ID,
	}, nil
}

// CreateSession exchanges the API secret for a session token and learns the
// owning user's id. The installation token is the bearer.
//
// The secret sent is the one c was registered with. A session can only be
// created with that secret, so it is read from the credential rather than
// passed in; registering with a different secret goes through RegisterDevice.
func (b *Builder) CreateSession(ctx context.Context, c Registered) (Session, error) {
	m, err := b.verifiedMessenger(c, c.PrivateKey, c.ServerPublicKey, c.InstallationToken)
	if err != nil {
		return Session{}, err
	}

	payload, err := m.Do(ctx, http.MethodPost, api.SessionServerPath, api.CreateSessionRequest{
		Secret: c.APISecret,
	})
	if err != nil {
		return Session{}, requestFailed(c, err)
	}

	var (
		id    api.ID
		token api.Token
		user  api.User
	)
	err = envelope.DecodePositional(payload,
		envelope.Key("Id", &id),
		envelope.Key("Token", &token),
		envelope.Whole(&user))
	if err != nil {
		return Session{}, newBuildError(c, ReasonResponse, err)
	}
	if token.Token == "" {
		return Session{}, newBuildError(c, ReasonResponse, errEmptyToken)
	}

	ownerID, ok := user.OwnerID()
	if !ok {
		return Session{}, newBuildError(c, ReasonResponse, errNoUser)
	}

	b.log.Info("Created session", slog.Int64("ownerID", ownerID))

	return Session{
		Registered:   c,
		SessionToken: token.Token,
		OwnerID:      ownerID,
	}, nil
}

// CheckSession confirms a stored session is still live by fetching the user
// it belongs to with the session token as bearer.
//
// An Error envelope, a response that identifies no user, or a user other than
// the stored owner yields a BuildError that can fall back to Registered.
// Transport failures yield a BuildError to retry at the same stage.
func (b *Builder) CheckSession(ctx context.Context, c UncheckedSession) (Session, error) {
	m, err := b.verifiedMessenger(c, c.PrivateKey, c.ServerPublicKey, c.SessionToken)
	if err != nil {
		return Session{}, err
	}

	payload, err := m.Do(ctx, http.MethodGet, api.UserPath, nil)
	if err != nil {
		return Session{}, requestFailed(c, err)
	}

	user, err := envelope.DecodeSingle[api.User](payload)
	if err != nil {
		return Session{}, newBuildError(c, ReasonResponse, err)
	}

	ownerID, ok := user.OwnerID()
	if !ok {
		return Session{}, newBuildError(c, ReasonResponse, errNoUser)
	}
	if c.OwnerID != 0 && c.OwnerID != ownerID {
		return Session{}, newBuildError(c, ReasonResponse,
			fmt.Errorf("%w: stored %d, server %d", errOwnerMismatch, c.OwnerID, ownerID))
	}

	b.log.Info("Session is live", slog.Int64("ownerID", ownerID))

	return Session{
		Registered:   c.Registered,
		SessionToken: c.SessionToken,
		OwnerID:      ownerID,
	}, nil
}

// Messenger returns a verified messenger authenticated with the session token.
func (b *Builder) Messenger(s Session) *messenger.Messenger {
	m := messenger.New(b.cfg, s.PrivateKey)
	m.SetServerPublicKey(s.ServerPublicKey)
	m.SetAuthenticationToken(s.SessionToken)
	return m
}

func (b *Builder) verifiedMessenger(stage Credential, key *rsa.PrivateKey, serverKey *rsa.PublicKey, token string) (*messenger.Messenger, error) {
	if key == nil {
		return nil, newBuildError(stage, ReasonKeyFormat, errNoPrivateKey)
	}
	if serverKey == nil {
		return nil, newBuildError(stage, ReasonKeyFormat, errNoServerKey)
	}

	m := messenger.New(b.cfg, key)
	m.SetServerPublicKey(serverKey)
	m.SetAuthenticationToken(token)
	return m, nil
}
