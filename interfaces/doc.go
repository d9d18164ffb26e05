// Package interfaces defines the types shared between credential handling and
// its storage, separating interface definitions from implementations.
//
// # Persistence
//
// CredentialRecord is the flat persisted form of a credential at any stage.
// CredentialStore loads and saves records; StorageBackend is the opaque blob
// store underneath it, with implementations in package storage.
//
// # Locations
//
// StorageBackendLocation parses backend URIs of the form
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// for the file, s3 and vault schemes.
//
// # Diagnostics
//
// DiagnosticSink receives response bodies that could not be decoded.
//
// # Errors
//
//   - ErrCredentialsNotFound: nothing has been persisted yet
//   - ErrBackendUnavailable: a backend could not be reached
//   - ErrInvalidLocationURI: a location URI is malformed or unsupported
package interfaces
