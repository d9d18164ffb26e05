// Package sandbox implements an in-memory bank speaking the signed session
// protocol, for tests and local development.
//
// The bank verifies client body signatures, signs every response with its own
// RSA key, issues installation and session tokens, and serves one user's
// monetary accounts and payment requests from memory. Faults can be injected
// with InjectRateLimit and ExpireSessions.
//
// Routes are mounted on a chi router with RegisterRoutes; cmd/sandbox hosts
// them behind httpserver.Server.
package sandbox
