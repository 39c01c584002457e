package relic

import (
	"errors"
)

var (
	ErrNotFound            = errors.New("no row exists with the requested key")
	ErrUnsupportedType     = errors.New("the declared field type is not a supported shape")
	ErrValueMismatch       = errors.New("value does not conform to the field's resolved type")
	ErrConstraintViolation = errors.New("a storage constraint was violated")
	ErrDB                  = errors.New("an error occured with the storage layer")

	// errUnresolved marks a field whose declared type names a record type
	// that has not been registered yet. The registry retries these fields on
	// every later registration; it is never returned by a resolved field.
	errUnresolved = errors.New("referenced record type is not registered")
)

// Error is a typed error returned by relic functions as their error value. It
// contains both a message explaining what happened as well as one or more
// error values it considers to be its causes. Error is compatible with the use
// of errors.Is() - calling errors.Is on some Error value err along with any
// value of error it holds as one of its causes will return true. This allows
// for easy examination and failure condition checking without needing to
// resort to manual typecasting.
//
// If Error has at least one cause defined, the result of calling Error.Error()
// will be its primary message with the result of calling Error() on its first
// cause appended to it.
//
// Error should not be used directly; call New to create one.
type Error struct {
	msg   string
	cause []error
}

// New creates a new Error with the given message, along with any errors it
// should wrap as its causes. Providing cause errors is not required, but will
// cause it to return true when it is checked against that error via a call to
// errors.Is.
func New(msg string, causes ...error) Error {
	err := Error{msg: msg}
	if len(causes) > 0 {
		err.cause = make([]error, len(causes))
		copy(err.cause, causes)
	}
	return err
}

// Error returns the message defined for the Error. If a message was defined
// for it when created, that message is returned, concatenated with the result
// of calling Error() on its first cause if one is defined. If no message or an
// empty message was defined for it when created, but there is at least one
// cause defined for it, the result of calling Error() on the first cause is
// returned. If no message is defined and no causes are defined, returns the
// empty string.
func (e Error) Error() string {
	if e.msg == "" && e.cause != nil {
		return e.cause[0].Error()
	}

	if e.cause != nil {
		return e.msg + ": " + e.cause[0].Error()
	}

	return e.msg
}

// Unwrap returns the causes of Error. The return value will be nil if no
// causes were defined for it.
//
// This function is for interaction with the errors API.
func (e Error) Unwrap() []error {
	if len(e.cause) > 0 {
		return e.cause
	}
	return nil
}
