// Package messenger sends signed requests to the bank API and authenticates
// its responses.
//
// Every request carries a User-Agent, Cache-Control: no-cache and, when a
// bearer token is set, X-Client-Authentication. Requests with a body are
// signed with the device key (X-Client-Signature). Responses to verified
// calls must carry an X-Server-Signature that verifies under the server key
// learned at installation; the body is not parsed otherwise.
//
// HTTP 429 responses are retried after a fixed pause for as long as the
// caller's context allows.
package messenger
