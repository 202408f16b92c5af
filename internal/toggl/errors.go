package toggl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so the protocol layer can map them to stable codes.
type Kind string

const (
	KindConfig     Kind = "config_error"
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindNotFound   Kind = "not_found"
	KindRemote     Kind = "remote_error"
	KindNetwork    Kind = "network_error"
	KindInternal   Kind = "internal_error"
)

// Error is the single error type returned by this package and the timer
// handlers built on top of it.
type Error struct {
	Kind   Kind
	Op     string // e.g. "create entry", "list entries"
	Status int    // HTTP status for remote failures, 0 otherwise
	Body   string // truncated response body for remote failures
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	switch {
	case e.Status != 0 && e.Body != "":
		msg = fmt.Sprintf("%s (status %d: %s)", msg, e.Status, e.Body)
	case e.Status != 0:
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// ValidationError builds a caller-input error.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// ErrMissingToken is returned whenever an operation needs the credential and
// none was configured.
var ErrMissingToken = &Error{Kind: KindConfig, Msg: "TOGGL_API_TOKEN not configured"}

func statusError(op string, status int, body string) *Error {
	e := &Error{Op: op, Status: status, Body: body}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = KindAuth
		e.Msg = "Toggl rejected the API token"
	case http.StatusNotFound:
		e.Kind = KindNotFound
		e.Msg = "resource not found"
	default:
		e.Kind = KindRemote
		e.Msg = "unexpected response from Toggl"
	}
	return e
}

func networkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Msg: "request to Toggl failed", Err: err}
}

func malformedError(op string, err error) *Error {
	return &Error{Kind: KindRemote, Op: op, Msg: "malformed response from Toggl", Err: err}
}
