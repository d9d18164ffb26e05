package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/bank-session-client/api/envelope"
	"github.com/ruteri/bank-session-client/api/messenger"
)

// Reason classifies why a stage transition failed.
type Reason string

const (
	// ReasonKeyGeneration: a device key could not be created. Fatal.
	ReasonKeyGeneration Reason = "key_generation"
	// ReasonKeyFormat: a key could not be encoded or the server key could not be decoded.
	ReasonKeyFormat Reason = "key_format"
	// ReasonRequest: the request body could not be built.
	ReasonRequest Reason = "request"
	// ReasonTransport: the request did not complete. Retry at the same stage.
	ReasonTransport Reason = "transport"
	// ReasonAPI: the server answered with an Error envelope.
	ReasonAPI Reason = "api"
	// ReasonResponse: the response could not be interpreted or contradicts the credential.
	ReasonResponse Reason = "response"
	// ReasonSignature: the response signature did not verify. Never downgraded.
	ReasonSignature Reason = "signature"
)

// BuildError is returned by a failed transition. Stage is the unchanged input
// credential so the caller can retry it, wait, or fall back.
type BuildError struct {
	Reason Reason
	Stage  Credential
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("credential transition from %s failed (%s): %v", e.Stage.Stage(), e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Fallback returns the credential one stage before Stage.
func (e *BuildError) Fallback() Credential {
	prev, _ := Degrade(e.Stage)
	return prev
}

// CanFallBack reports whether falling back one stage may help: the server
// rejected the current stage's artifacts or returned something that does not
// fit them. Transport, signature and key generation failures never qualify.
// The device key is never dropped, so an Initialized credential cannot fall
// back.
func (e *BuildError) CanFallBack() bool {
	prev, ok := Degrade(e.Stage)
	if !ok || prev.Stage() == StageUninitialized {
		return false
	}
	return e.Reason == ReasonAPI || e.Reason == ReasonResponse || e.Reason == ReasonKeyFormat
}

func newBuildError(stage Credential, reason Reason, err error) *BuildError {
	return &BuildError{Reason: reason, Stage: stage, Err: err}
}

// requestFailed classifies an error returned by the messenger.
func requestFailed(stage Credential, err error) *BuildError {
	var (
		transportErr *messenger.TransportError
		apiErr       *envelope.APIError
	)

	switch {
	case errors.Is(err, messenger.ErrSignatureInvalid):
		return newBuildError(stage, ReasonSignature, err)
	case errors.As(err, &transportErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return newBuildError(stage, ReasonTransport, err)
	case errors.As(err, &apiErr):
		return newBuildError(stage, ReasonAPI, err)
	default:
		return newBuildError(stage, ReasonResponse, err)
	}
}
