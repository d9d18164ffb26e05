package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/ruteri/bank-session-client/interfaces"
)

// RecordStore implements interfaces.CredentialStore on top of a blob backend.
//
// Records are JSON encoded. With a passphrase they are sealed before they
// leave the process; without one they are stored in the clear.
type RecordStore struct {
	backend    interfaces.StorageBackend
	passphrase []byte
	log        *slog.Logger
}

// NewRecordStore creates a RecordStore. An empty passphrase disables sealing.
func NewRecordStore(backend interfaces.StorageBackend, passphrase string, log *slog.Logger) *RecordStore {
	if log == nil {
		log = slog.Default()
	}
	var key []byte
	if passphrase != "" {
		key = []byte(passphrase)
	}
	return &RecordStore{
		backend:    backend,
		passphrase: key,
		log:        log,
	}
}

// Load fetches and decodes the record.
// A sealed record without a configured passphrase fails with cryptoutils.ErrSealedData.
func (s *RecordStore) Load(ctx context.Context) (*interfaces.CredentialRecord, error) {
	data, err := s.backend.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if cryptoutils.IsSealed(data) {
		if s.passphrase == nil {
			return nil, fmt.Errorf("%w: record is sealed and no passphrase is configured", cryptoutils.ErrSealedData)
		}
		data, err = cryptoutils.Open(data, s.passphrase)
		if err != nil {
			return nil, err
		}
	} else if s.passphrase != nil {
		s.log.Warn("Stored credentials are not sealed, they will be sealed on the next save",
			slog.String("backend", s.backend.Name()))
	}

	var record interfaces.CredentialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode credential record: %w", err)
	}
	return &record, nil
}

// Save encodes, optionally seals, and stores the record.
func (s *RecordStore) Save(ctx context.Context, record *interfaces.CredentialRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode credential record: %w", err)
	}

	if s.passphrase != nil {
		data, err = cryptoutils.Seal(data, s.passphrase)
		if err != nil {
			return fmt.Errorf("failed to seal credential record: %w", err)
		}
	}

	if err := s.backend.Store(ctx, data); err != nil {
		return fmt.Errorf("failed to store credential record: %w", err)
	}

	s.log.Debug("Saved credentials",
		slog.String("backend", s.backend.Name()),
		slog.Bool("sealed", s.passphrase != nil))
	return nil
}
