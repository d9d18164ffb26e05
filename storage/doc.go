// Package storage persists the credential record across process runs.
//
// A record is a single small blob. Backends store exactly one blob each:
//
//   - FileBackend writes a local file with owner-only permissions
//   - S3Backend keeps a private, server-side encrypted object
//   - VaultBackend keeps a KV v2 secret, authenticated with a Vault token
//   - MultiStorageBackend mirrors writes to several backends
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/bankctl/credentials.json
//   - s3://AKIA...:SECRET@bucket-name/prefix?region=eu-west-1&endpoint=minio.local:9000
//   - vault://vault.example.com:8200/secret/bank/credentials?token=s.xxxx
//
// StorageBackendFactory turns URIs into backends; CreateMultiBackend combines
// several into one.
//
// # Records
//
// RecordStore implements interfaces.CredentialStore on any backend. Records
// are JSON encoded and, when a passphrase is configured, sealed with
// cryptoutils.Seal before they are written. Loading a sealed record without a
// passphrase fails with cryptoutils.ErrSealedData.
//
//	factory := storage.NewStorageBackendFactory(log)
//	backend, err := factory.CreateMultiBackend([]string{
//	    "file:///var/lib/bankctl/credentials.json",
//	    "vault://vault:8200/secret/bank?token=" + token,
//	})
//	store := storage.NewRecordStore(backend, passphrase, log)
//
// # Diagnostics
//
// FileDumpSink implements interfaces.DiagnosticSink by overwriting a single
// file with the last response body that could not be decoded.
package storage
