package exceptions

import (
	"errors"
	"fmt"
)

// Exception is an error that optionally wraps a cause.
type Exception interface {
	error
	Cause() error
}

type exception struct {
	message string
	cause   error
}

func (e *exception) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *exception) Unwrap() error {
	return e.cause
}

func (e *exception) Cause() error {
	return e.cause
}

// New builds a plain sentinel-style error from its arguments.
func New(message ...any) error {
	return errors.New(fmt.Sprint(message...))
}

// Cause wraps cause with additional context, preserving errors.Is/As via Unwrap.
func Cause(cause error, message ...any) Exception {
	return &exception{fmt.Sprint(message...), cause}
}
