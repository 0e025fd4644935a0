package arcgis

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure kinds. Every error returned by this package, and by the domain
// systems built on it, matches exactly one of these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("auth error")
	ErrTransient  = errors.New("transient error")
	ErrProvider   = errors.New("provider error")
)

// Validation reasons.
var (
	ErrUnsupportedType         = errors.New("unsupported type")
	ErrTooLarge                = errors.New("payload too large")
	ErrEmptyPayload            = errors.New("empty payload")
	ErrMissingSpatialReference = errors.New("missing spatial reference")
	ErrUnknownStatus           = errors.New("unknown status")
)

// ErrUnknownProvider indicates a provider key absent from configuration.
var ErrUnknownProvider = errors.New("unknown provider")

// authCodes are REST error codes that signal an invalid or expired token.
var authCodes = map[int]bool{401: true, 403: true, 498: true, 499: true}

// Error carries the failure kind together with the operation and whatever
// diagnostic the provider returned.
type Error struct {
	Kind    error
	Op      string
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (http %d)", e.Status)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation builds a ValidationError for reason.
func Validation(op string, reason error, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: fmt.Sprintf(format, args...), Err: reason}
}

// Auth builds an AuthError.
func Auth(op string, err error) *Error {
	return &Error{Kind: ErrAuth, Op: op, Err: err}
}

// Transient builds a TransientError.
func Transient(op string, err error) *Error {
	return &Error{Kind: ErrTransient, Op: op, Err: err}
}

// Provider builds a ProviderError with the provider's diagnostic.
func Provider(op string, message string, err error) *Error {
	return &Error{Kind: ErrProvider, Op: op, Message: message, Err: err}
}

// IsRetryable reports whether err is a TransientError.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind returns the failure kind of err, or nil when err carries none.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrAuth, ErrTransient, ErrProvider} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// MapHTTPStatus maps failure kinds to HTTP status codes for callers that
// expose gateway-backed operations over HTTP.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusInternalServerError
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrAuth), errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// restError is the error envelope returned by REST endpoints with HTTP 200.
type restError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (r *restError) message() string {
	if len(r.Details) == 0 {
		return r.Message
	}
	return r.Message + " [" + strings.Join(r.Details, "; ") + "]"
}

// classify converts a REST error envelope into a typed failure.
func (r *restError) classify(op string, status int) *Error {
	e := &Error{Op: op, Status: status, Code: r.Code, Message: r.message()}
	switch {
	case authCodes[r.Code]:
		e.Kind = ErrAuth
	case r.Code >= 500:
		e.Kind = ErrTransient
	default:
		e.Kind = ErrProvider
	}
	return e
}
