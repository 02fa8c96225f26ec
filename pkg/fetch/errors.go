package fetch

import (
	"errors"
	"fmt"
)

// Taxonomy of fetch failures. Every *Error unwraps to exactly one of these,
// plus retry.ErrRetryExhausted once the retry budget ran out.
var (
	// ErrUnauthorized means the provider rejected the credentials (401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited means the provider throttled the request (429).
	ErrRateLimited = errors.New("rate limited")

	// ErrServerError means the provider failed with a 5xx status.
	ErrServerError = errors.New("server error")

	// ErrUnexpectedStatus is any other non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrNetwork is a transport failure before a status was received.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse is a 2xx whose body is not the expected JSON shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidRequest is a request that could not be built, so nothing was sent.
	ErrInvalidRequest = errors.New("invalid request")
)

var reasonErrors = map[Reason]error{
	ReasonUnauthorized:      ErrUnauthorized,
	ReasonRateLimited:       ErrRateLimited,
	ReasonServerError:       ErrServerError,
	ReasonUnexpectedStatus:  ErrUnexpectedStatus,
	ReasonNetwork:           ErrNetwork,
	ReasonMalformedResponse: ErrMalformedResponse,
	ReasonInvalidRequest:    ErrInvalidRequest,
}

// Error is a failed fetch with context for logs and abort reports.
type Error struct {
	Reason     Reason
	StatusCode int
	Endpoint   string
	Attempts   int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s failed (%s", e.Endpoint, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(", %d attempts", e.Attempts)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error whose chain contains the reason's sentinel.
func newError(reason Reason, status int, endpoint, message string, cause error) *Error {
	err := cause
	if sentinel, ok := reasonErrors[reason]; ok {
		if cause != nil {
			err = fmt.Errorf("%w: %w", sentinel, cause)
		} else {
			err = sentinel
		}
	}
	return &Error{
		Reason:     reason,
		StatusCode: status,
		Endpoint:   endpoint,
		Message:    message,
		Err:        err,
	}
}
