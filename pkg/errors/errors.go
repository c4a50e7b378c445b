// Package errors is the typed error every layer returns. A Code travels from
// the store up to api/responses, which turns it into a status and envelope.
package errors

import (
	stdErrors "errors"
	"fmt"
)

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code is CodeInternal on a nil receiver so callers never branch on nil.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code, so a bare sentinel such as
// New(CodeNotFound, "") works with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// InsufficientStock reports how many units the product could still supply.
// A negative availability (reserved above stock) is shown as zero.
func InsufficientStock(productID fmt.Stringer, available int64) *Error {
	return New(CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
		"productId":      productID.String(),
		"availableStock": max(available, 0),
	})
}

// Unsupported reports an operation the active storage backend cannot perform.
func Unsupported(backend, op string) *Error {
	return Newf(CodeUnsupported, "%s is not supported by the %s backend", op, backend).
		WithDetails(map[string]any{"backend": backend, "operation": op})
}
