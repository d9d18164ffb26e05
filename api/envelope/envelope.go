package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/bank-session-client/interfaces"
)

// Top-level keys of the server envelope.
const (
	ErrorKey      = "Error"
	ResponseKey   = "Response"
	PaginationKey = "Pagination"
)

var (
	// ErrMalformedJSON is returned when a body is not valid JSON.
	ErrMalformedJSON = errors.New("malformed JSON")

	// ErrShapeMismatch is returned when valid JSON does not have the expected envelope shape.
	ErrShapeMismatch = errors.New("envelope shape mismatch")
)

// ShapeError describes where a body deviated from the expected shape.
type ShapeError struct {
	// Path locates the offending element, e.g. "Response[1].Token.token".
	Path string

	// Reason is a short human-readable explanation.
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%s at %s: %s", ErrShapeMismatch, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// ErrorDescription is a single entry of an Error envelope.
type ErrorDescription struct {
	Description           string `json:"error_description"`
	TranslatedDescription string `json:"error_description_translated"`
}

// APIError is returned when the server explicitly answered with an Error envelope.
type APIError struct {
	StatusCode   int
	Descriptions []ErrorDescription
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Descriptions))
	for _, d := range e.Descriptions {
		parts = append(parts, d.Description)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// Envelope is the first-stage parse of a server body: a JSON object whose
// top-level members are kept raw until a consumer decides on their shape.
type Envelope struct {
	// StatusCode is the HTTP status the body arrived with, if known.
	StatusCode int

	raw    []byte
	fields map[string]json.RawMessage
	sink   interfaces.DiagnosticSink
}

// Parse performs the first-stage parse of body. Failures are reported to sink
// (which may be nil) with the raw bytes.
func Parse(body []byte, sink interfaces.DiagnosticSink) (*Envelope, error) {
	env := &Envelope{raw: body, sink: sink}

	if !json.Valid(body) {
		env.capture("malformed")
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedJSON, len(body))
	}

	if err := json.Unmarshal(body, &env.fields); err != nil || env.fields == nil {
		env.capture("not-an-object")
		return nil, &ShapeError{Path: "$", Reason: "envelope is not a JSON object", Err: err}
	}

	return env, nil
}

// Raw returns the body bytes the envelope was parsed from.
func (e *Envelope) Raw() []byte {
	return e.raw
}

// Has reports whether a top-level key is present.
func (e *Envelope) Has(key string) bool {
	_, ok := e.fields[key]
	return ok
}

// Classify splits the envelope into a success payload or an error list.
// An Error key always wins, even when a Response key is present too.
func (e *Envelope) Classify() (*Payload, error) {
	if rawErrors, ok := e.fields[ErrorKey]; ok {
		var descriptions []ErrorDescription
		if err := json.Unmarshal(rawErrors, &descriptions); err != nil {
			e.capture("error-list")
			return nil, &ShapeError{Path: ErrorKey, Reason: "expected an array of error descriptions", Err: err}
		}
		return nil, &APIError{StatusCode: e.StatusCode, Descriptions: descriptions}
	}

	rawResponse, ok := e.fields[ResponseKey]
	if !ok {
		e.capture("missing-response")
		return nil, &ShapeError{Path: "$", Reason: "neither Error nor Response present"}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(rawResponse, &elements); err != nil || isNull(rawResponse) {
		e.capture("response-not-array")
		return nil, &ShapeError{Path: ResponseKey, Reason: "expected an array", Err: err}
	}

	return &Payload{envelope: e, elements: elements}, nil
}

func (e *Envelope) capture(label string) {
	if e.sink != nil {
		e.sink.Capture(label, e.raw)
	}
}

// Payload is the success branch of a classified envelope.
type Payload struct {
	envelope *Envelope
	elements []json.RawMessage
}

// Len returns the number of elements in the Response array.
func (p *Payload) Len() int {
	return len(p.elements)
}

func (p *Payload) shapeError(label string, err *ShapeError) error {
	p.envelope.capture(label)
	return err
}

func (p *Payload) decodeElement(index int, raw json.RawMessage, dst any) error {
	path := fmt.Sprintf("%s[%d]", ResponseKey, index)
	if err := json.Unmarshal(raw, dst); err != nil {
		return p.shapeError("decode", &ShapeError{Path: joinPath(path, errorField(err)), Reason: "cannot decode element", Err: err})
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// errorField extracts the dotted field path from a decode error when the
// standard library reports one.
func errorField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

func joinPath(base, field string) string {
	if field == "" {
		return base
	}
	return base + "." + field
}
