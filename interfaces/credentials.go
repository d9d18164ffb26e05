package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrCredentialsNotFound is returned when no credential record has been persisted yet.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// CredentialRecord is the flat, persisted form of a credential at any stage.
//
// Keys are PEM-encoded. Empty fields mean the corresponding stage has not been
// reached (or was dropped during a fallback).
type CredentialRecord struct {
	// PrivateKey is the PKCS#8 PEM encoding of the device signing key.
	PrivateKey string `json:"private_key,omitempty"`

	// InstallationToken is the bearer token issued by the installation call.
	InstallationToken string `json:"installation_token,omitempty"`

	// ServerPublicKey is the PEM encoding of the server's response signing key.
	ServerPublicKey string `json:"server_public_key,omitempty"`

	// APISecret is the account-level secret the device was registered with.
	APISecret string `json:"api_secret,omitempty"`

	// DeviceID is the server-assigned identifier of the registered device.
	DeviceID int64 `json:"registered_device_id,omitempty"`

	// SessionToken is the bearer token of the last created session.
	SessionToken string `json:"session_token,omitempty"`

	// OwnerID is the identifier of the user owning the session.
	OwnerID int64 `json:"owner_id,omitempty"`
}

// CredentialStore persists credential records between process runs.
type CredentialStore interface {
	// Load returns the last saved record, or ErrCredentialsNotFound.
	Load(ctx context.Context) (*CredentialRecord, error)

	// Save replaces the persisted record.
	Save(ctx context.Context, record *CredentialRecord) error
}

// StorageBackend provides opaque blob storage for a single credential record.
type StorageBackend interface {
	// Fetch retrieves the stored blob, or ErrCredentialsNotFound if nothing is stored.
	Fetch(ctx context.Context) ([]byte, error)

	// Store replaces the stored blob.
	Store(ctx context.Context, data []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI that identifies this backend.
	LocationURI() string
}

// DiagnosticSink receives raw response bodies that could not be decoded so they
// can be inspected offline. Implementations must not block for long and
// report their own failures out of band.
type DiagnosticSink interface {
	Capture(label string, body []byte)
}
