package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/bank-session-client/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs and
// combines them into multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageBackendFactory{log: logger}
}

// StorageBackendFor creates a storage backend from a location.
//
// Supported schemes:
//   - file:///path/to/credentials.json - Local file
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=host - S3 object
//   - vault://host:port/mount/secret/path?token=...&insecure=true - Vault KV v2 secret
//
// Returns an error if the location is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "s3":
		return sf.createS3Backend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "file":
		return sf.createFileBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// Locations that cannot be parsed or instantiated are skipped with a warning.
// Returns an error if no valid backend could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []string) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))

	for _, uri := range locationURIs {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			sf.log.Warn("Invalid storage location", "err", err)
			continue
		}

		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("scheme", location.Scheme),
				slog.String("host", location.Host))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// Credentials embedded in the URI take precedence over the default AWS chain.
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend. The first path segment is
// the mount, the rest is the secret path.
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing vault host", interfaces.ErrInvalidLocationURI)
	}

	mount, dataPath, _ := strings.Cut(strings.TrimPrefix(loc.Path, "/"), "/")

	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}

	return NewVaultBackend(scheme+"://"+loc.Host, mount, dataPath, loc.GetParam("token"), sf.log)
}

// createFileBackend creates a file backend.
// URI format: file:///absolute/path/credentials.json or file://./relative/credentials.json
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("path", loc.Path))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("%w: file location must name a file", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(path, sf.log)
}
