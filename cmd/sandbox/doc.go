// Package main (cmd/sandbox) serves the in-memory sandbox bank over HTTP.
//
// The bank API is mounted under /v1 next to the operational endpoints of
// httpserver.Server (/livez, /readyz, /drain, /undrain and optional pprof).
// Prometheus metrics are served on --metrics-addr.
//
// Without --key-file a new response signing key is generated on every start,
// so clients must bootstrap again after a restart. All state lives in memory.
//
// Example usage:
//
//	sandbox --listen-addr 127.0.0.1:8080 --api-secret local-secret --owner-id 7
//	bankctl --base-url http://127.0.0.1:8080/v1 --api-key local-secret accounts
package main
