package thor

import (
	"net/http"
	"strconv"
)

// ErrorKind identifies a class of framework error, independent of its exact
// Go type.
type ErrorKind string

// Error kinds recognized by the framework, per the error taxonomy.
const (
	KindBadRequest         ErrorKind = "bad-request"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not-found"
	KindMethodNotAllowed   ErrorKind = "method-not-allowed"
	KindPayloadTooLarge    ErrorKind = "payload-too-large"
	KindTooManyRequests    ErrorKind = "too-many-requests"
	KindGatewayTimeout     ErrorKind = "gateway-timeout"
	KindInternal           ErrorKind = "internal"
)

var kindStatus = map[ErrorKind]int{
	KindBadRequest:       http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindMethodNotAllowed: http.StatusMethodNotAllowed,
	KindPayloadTooLarge:  http.StatusRequestEntityTooLarge,
	KindTooManyRequests:  http.StatusTooManyRequests,
	KindGatewayTimeout:   http.StatusGatewayTimeout,
	KindInternal:         http.StatusInternalServerError,
}

// HTTPError is a framework error that carries a status code, a detail string
// safe to expose to the client, and optional response headers.
type HTTPError struct {
	Kind    ErrorKind
	Status  int
	Detail  string
	Headers map[string]string

	// Extra carries kind-specific fields merged into the JSON error body,
	// e.g. "retry_after" for too-many-requests.
	Extra map[string]interface{}

	// cause is the underlying error, if any, logged but never exposed.
	cause error
}

func (e *HTTPError) Error() string {
	return e.Detail
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.cause
}

// NewHTTPError builds an HTTPError of the given kind with detail as its
// public-facing message.
func NewHTTPError(kind ErrorKind, detail string) *HTTPError {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &HTTPError{Kind: kind, Status: status, Detail: detail}
}

// Wrap attaches cause as the logged-but-not-exposed origin of e and returns
// e for chaining.
func (e *HTTPError) Wrap(cause error) *HTTPError {
	e.cause = cause
	return e
}

// WithHeader attaches a response header to e and returns e for chaining.
func (e *HTTPError) WithHeader(key, value string) *HTTPError {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	e.Headers[key] = value
	return e
}

// WithExtra merges a kind-specific field into e's JSON body and returns e
// for chaining.
func (e *HTTPError) WithExtra(key string, value interface{}) *HTTPError {
	if e.Extra == nil {
		e.Extra = map[string]interface{}{}
	}
	e.Extra[key] = value
	return e
}

// Convenience constructors for the error taxonomy in spec §7.

func ErrBadRequest(detail string) *HTTPError {
	return NewHTTPError(KindBadRequest, detail)
}

func ErrUnauthorized(detail string) *HTTPError {
	return NewHTTPError(KindUnauthorized, detail).
		WithHeader("WWW-Authenticate", "Bearer")
}

func ErrForbidden(detail string) *HTTPError {
	return NewHTTPError(KindForbidden, detail)
}

func ErrNotFound(detail string) *HTTPError {
	return NewHTTPError(KindNotFound, detail)
}

func ErrMethodNotAllowed(detail string) *HTTPError {
	return NewHTTPError(KindMethodNotAllowed, detail)
}

func ErrPayloadTooLarge(detail string) *HTTPError {
	return NewHTTPError(KindPayloadTooLarge, detail)
}

func ErrTooManyRequests(detail string, retryAfter int) *HTTPError {
	return NewHTTPError(KindTooManyRequests, detail).
		WithHeader("Retry-After", strconv.Itoa(retryAfter)).
		WithExtra("retry_after", retryAfter)
}

func ErrGatewayTimeout(detail string) *HTTPError {
	return NewHTTPError(KindGatewayTimeout, detail)
}

func ErrInternal(cause error) *HTTPError {
	return NewHTTPError(KindInternal, "Internal Server Error").Wrap(cause)
}
