package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine rejections so callers can tell "your request was
// wrong" apart from "the system could not adjudicate right now".
type ErrorKind int

const (
	// KindValidation: malformed input, out-of-range values. Rejected before
	// any state is touched.
	KindValidation ErrorKind = iota
	// KindNotFound: referenced entity does not exist.
	KindNotFound
	// KindConflict: operation invalid for current status, duplicate
	// submission, capacity exceeded.
	KindConflict
	// KindForbidden: actor not a participant, not eligible, or below a
	// reputation gate.
	KindForbidden
	// KindPaymentRequired: a payment must settle before the operation can
	// commit.
	KindPaymentRequired
	// KindCollaborator: the jury or payment gateway errored or returned an
	// invalid payload.
	KindCollaborator
)

// ServiceError is the typed rejection every engine method returns on a
// precondition violation. Nothing in the engines panics or retries.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func validationErr(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func forbiddenErr(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func paymentRequiredErr(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindPaymentRequired, Message: fmt.Sprintf(format, args...)}
}

func collaboratorErr(msg string, err error) *ServiceError {
	return &ServiceError{Kind: KindCollaborator, Message: msg, Err: err}
}

// AsServiceError unwraps err into a *ServiceError if it is one.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HTTPStatus maps an error kind to the status a handler should answer with.
func (e *ServiceError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindForbidden:
		return 403
	case KindPaymentRequired:
		return 402
	case KindCollaborator:
		return 502
	default:
		return 500
	}
}
