// Package credentials implements the credential bootstrap of the bank API.
//
// A credential moves through
//
//	Uninitialized -> Initialized -> Installed -> Registered -> Session
//
// with UncheckedSession standing for a session loaded from storage whose
// validity is not yet known. Builder performs single transitions; each
// returns the next stage or a *BuildError carrying the unchanged input stage.
// Bootstrapper chains transitions, persists progress and falls back one
// stage at a time when the server rejects what the credential holds.
//
// ToRecord and FromRecord convert between credentials and the flat
// interfaces.CredentialRecord kept in storage.
package credentials
