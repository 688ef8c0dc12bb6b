package envelope

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes a handled failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPersistence Kind = "persistence"
	KindCorruptJob  Kind = "corrupt_job_record"
	KindIO          Kind = "io"
	KindInternal    Kind = "internal"
)

func (k Kind) status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindCorruptJob, KindIO, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is a handled failure. It can be returned from a handler or
// wrapped deep inside another error; either way the transport renders
// it through Result.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status. Zero means the Kind default, and
	// 400 when Kind is empty as well.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	if e.Kind == "" {
		return http.StatusBadRequest
	}
	return e.Kind.status()
}

// Result renders the wire shape of the error.
func (e *Error) Result() Result {
	return Result{
		Value:  map[string]any{"success": false, "message": e.Message},
		Status: e.StatusCode(),
	}
}

// NewError builds an Error with an explicit status; 0 means 400.
func NewError(message string, status int) *Error {
	return &Error{Message: message, Status: status}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Wrap keeps err as the cause and uses its text as the message, so the
// client sees the original failure reason.
func Wrap(err error, kind Kind) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

// Wrapf is Wrap with a custom message.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// FromError converts any error into an Error. An *Error in the chain
// wins; otherwise a StatusCoder keeps its status, and everything else
// is a 500 carrying the error text.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	status := http.StatusInternalServerError
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 100 && code <= 999 {
			status = code
		}
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Status: status, Cause: err}
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsValidation(err error) bool { return IsKind(err, KindValidation) }

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
