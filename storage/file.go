package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/bank-session-client/interfaces"
)

// FileBackend keeps the credential record in a single file on the local file
// system. Writes go through a temporary file in the same directory and are
// renamed into place, so a reader never observes a half-written record.
type FileBackend struct {
	path        string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file backend writing to path. The parent directory
// is created with owner-only permissions if it does not exist.
func NewFileBackend(path string, log *slog.Logger) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", interfaces.ErrInvalidLocationURI)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	return &FileBackend{
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", path),
	}, nil
}

// Fetch reads the stored record.
// Returns ErrCredentialsNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched credentials from file",
		slog.String("path", b.path),
		slog.Int("size", len(data)))

	return data, nil
}

// Store replaces the stored record with data. The file is readable by the
// owner only.
func (b *FileBackend) Store(ctx context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(b.path), "."+filepath.Base(b.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}

	b.log.Debug("Stored credentials in file",
		slog.String("path", b.path),
		slog.Int("size", len(data)))

	return nil
}

// Available checks that the directory holding the record exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(filepath.Dir(b.path))
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.path))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
