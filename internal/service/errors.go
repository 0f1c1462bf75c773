package service

import "errors"

// Kind classifies service errors for the transport layers
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is returned by service operations for caller-visible failures.
// Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for errors not raised by the service
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

func notFound(msg string, err error) error { return &Error{Kind: KindNotFound, Message: msg, Err: err} }
func badRequest(msg string) error { return &Error{Kind: KindBadRequest, Message: msg} }
func forbidden(msg string, err error) error { return &Error{Kind: KindForbidden, Message: msg, Err: err} }
func conflict(msg string, err error) error { return &Error{Kind: KindConflict, Message: msg, Err: err} }
