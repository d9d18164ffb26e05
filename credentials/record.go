package credentials

import (
	"fmt"

	"github.com/ruteri/bank-session-client/cryptoutils"
	"github.com/ruteri/bank-session-client/interfaces"
)

// ToRecord flattens a credential into its persisted form. Fields of stages
// the credential has not reached are left empty. A Session is stored like an
// UncheckedSession: its validity must be re-established after loading.
func ToRecord(c Credential) (*interfaces.CredentialRecord, error) {
	record := &interfaces.CredentialRecord{}

	var (
		initialized *Initialized
		installed   *Installed
		registered  *Registered
	)

	switch c := c.(type) {
	case Uninitialized:
	case Initialized:
		initialized = &c
	case Installed:
		installed = &c
	case Registered:
		registered = &c
	case UncheckedSession:
		registered = &c.Registered
		record.SessionToken = c.SessionToken
		record.OwnerID = c.OwnerID
	case Session:
		registered = &c.Registered
		record.SessionToken = c.SessionToken
		record.OwnerID = c.OwnerID
	default:
		return nil, fmt.Errorf("unknown credential type %T", c)
	}

	if registered != nil {
		record.APISecret = registered.APISecret
		record.DeviceID = registered.DeviceID
		installed = &registered.Installed
	}

	if installed != nil {
		record.InstallationToken = installed.InstallationToken
		if installed.ServerPublicKey != nil {
			serverPEM, err := cryptoutils.PublicKeyToPEM(installed.ServerPublicKey)
			if err != nil {
				return nil, err
			}
			record.ServerPublicKey = string(serverPEM)
		}
		initialized = &installed.Initialized
	}

	if initialized != nil && initialized.PrivateKey != nil {
		privatePEM, err := cryptoutils.PrivateKeyToPEM(initialized.PrivateKey)
		if err != nil {
			return nil, err
		}
		record.PrivateKey = string(privatePEM)
	}

	return record, nil
}

// FromRecord rebuilds the furthest stage whose fields are all present in the
// record. A record carrying a session token yields an UncheckedSession.
// Malformed keys fail with cryptoutils.ErrKeyFormat.
func FromRecord(record *interfaces.CredentialRecord) (Credential, error) {
	if record == nil || record.PrivateKey == "" {
		return Uninitialized{}, nil
	}

	privateKey, err := cryptoutils.ParsePrivateKeyPEM([]byte(record.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("stored private key: %w", err)
	}
	initialized := Initialized{PrivateKey: privateKey}

	if record.InstallationToken == "" || record.ServerPublicKey == "" {
		return initialized, nil
	}

	serverKey, err := cryptoutils.ParsePublicKeyPEM([]byte(record.ServerPublicKey))
	if err != nil {
		return nil, fmt.Errorf("stored server public key: %w", err)
	}
	installed := Installed{
		Initialized:       initialized,
		InstallationToken: record.InstallationToken,
		ServerPublicKey:   serverKey,
	}

	if record.APISecret == "" || record.DeviceID == 0 {
		return installed, nil
	}
	registered := Registered{
		Installed: installed,
		APISecret: record.APISecret,
		DeviceID:  record.DeviceID,
	}

	if record.SessionToken == "" {
		return registered, nil
	}
	return UncheckedSession{
		Registered:   registered,
		SessionToken: record.SessionToken,
		OwnerID:      record.OwnerID,
	}, nil
}
