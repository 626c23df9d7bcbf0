package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors of the backend failure taxonomy. Check with errors.Is.
var (
	// ErrUnavailable indicates the backend rejected or could not serve the run
	// (authentication, unknown model, rate limit, outage).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrCancelled indicates the run was cancelled by the caller.
	ErrCancelled = errors.New("backend run cancelled")

	// ErrProtocol indicates the backend produced output that violates the stream contract.
	ErrProtocol = errors.New("backend protocol error")
)

// Error is a classified backend failure.
type Error struct {
	// Kind is one of ErrUnavailable, ErrCancelled or ErrProtocol.
	Kind error
	// Message is safe to show to clients.
	Message string
	// Status is the upstream HTTP status when the backend is remote, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's Kind so errors.Is(err, ErrUnavailable) works through wrapping.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unavailable returns an ErrUnavailable error.
func Unavailable(message string, status int, err error) *Error {
	return &Error{Kind: ErrUnavailable, Message: message, Status: status, Err: err}
}

// Cancelled returns an ErrCancelled error.
func Cancelled(err error) *Error {
	return &Error{Kind: ErrCancelled, Message: "request cancelled", Err: err}
}

// Protocol returns an ErrProtocol error.
func Protocol(message string, err error) *Error {
	return &Error{Kind: ErrProtocol, Message: message, Err: err}
}

// InvalidRequest returns an ErrProtocol error for a request the backend
// cannot accept, reported to clients as a 400.
func InvalidRequest(message string, err error) *Error {
	return &Error{Kind: ErrProtocol, Message: message, Status: http.StatusBadRequest, Err: err}
}

// Classify converts any error into an *Error. Classified errors pass through,
// context cancellation becomes ErrCancelled and everything else ErrUnavailable.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(err)
	}

	return Unavailable("backend request failed", 0, err)
}
