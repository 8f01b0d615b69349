package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failed core operation. The facade maps it to a
// status code; the message travels to the client verbatim.
type Kind string

const (
	KindSelfRequest      Kind = "self_request"
	KindAlreadyConnected Kind = "already_connected"
	KindDuplicatePending Kind = "duplicate_pending"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindAlreadyHandled   Kind = "already_handled"
	KindValidation       Kind = "validation_error"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// Error is the error type every core operation returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.NotFound(""))
// style checks work without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func SelfRequest() *Error {
	return New(KindSelfRequest, "cannot send a connection request to yourself")
}

func AlreadyConnected() *Error {
	return New(KindAlreadyConnected, "already connected")
}

func DuplicatePending() *Error {
	return New(KindDuplicatePending, "request already sent")
}

func NotFound(what string) *Error {
	return New(KindNotFound, what+" not found")
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func AlreadyHandled() *Error {
	return New(KindAlreadyHandled, "request already handled")
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func StoreUnavailable(err error) *Error {
	return Wrap(KindStoreUnavailable, "store unavailable", err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf returns the Kind carried by err, or KindInternal if err is not
// an *Error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code the facade responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSelfRequest, KindValidation:
		return http.StatusBadRequest
	case KindAlreadyConnected, KindDuplicatePending, KindAlreadyHandled:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether err may be retried locally. Only transient store
// failures qualify; every other kind is terminal for the call.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}
