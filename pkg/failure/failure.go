// Package failure defines the error values returned by the compiler and the
// virtual machine.
//
// Every failure carries a coarse Kind (compile or runtime) and a finer Code
// that callers and tests can branch on. Both the compiler and the VM return
// failures as data; neither panics on malformed input.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the coarse classification of a failure.
type Kind uint8

const (
	Compile Kind = iota + 1
	Runtime
)

// String returns the kind name used in messages.
func (k Kind) String() string {
	switch k {
	case Compile:
		return "compile error"
	case Runtime:
		return "runtime error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Code identifies the specific condition behind a failure.
type Code string

// Compile-time codes
const (
	TooManyLocals Code = "too_many_locals"
	Unsupported   Code = "unsupported"
	Malformed     Code = "malformed"
	Internal      Code = "internal"
)

// Runtime codes
const (
	TypeMismatch      Code = "type_mismatch"
	UndefinedVariable Code = "undefined_variable"
	DivisionByZero    Code = "division_by_zero"
	StackOverflow     Code = "stack_overflow"
	StackUnderflow    Code = "stack_underflow"
	InvalidJump       Code = "invalid_jump"
	InvalidOperand    Code = "invalid_operand"
	StepLimit         Code = "step_limit"
)

// NoOffset marks a failure that is not tied to a code cell.
const NoOffset = -1

// Error is a compile or runtime failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Offset  int   // cell offset of the failing instruction, or NoOffset
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Offset != NoOffset {
		return fmt.Sprintf("%s at %04X: %s", e.Kind, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind and Code, so callers can write
// errors.Is(err, &failure.Error{Kind: failure.Runtime, Code: failure.StackOverflow}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Compilef creates a compile failure.
func Compilef(code Code, format string, args ...any) *Error {
	return &Error{
		Kind:    Compile,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  NoOffset,
	}
}

// Runtimef creates a runtime failure at the given cell offset.
func Runtimef(code Code, offset int, format string, args ...any) *Error {
	return &Error{
		Kind:    Runtime,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
	}
}

// Wrap attaches a cause to a compile failure.
func Wrap(code Code, err error, format string, args ...any) *Error {
	e := Compilef(code, format, args...)
	e.Message = fmt.Sprintf("%s: %v", e.Message, err)
	e.Err = err
	return e
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCompile reports whether err is a compile failure.
func IsCompile(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == Compile
}

// IsRuntime reports whether err is a runtime failure.
func IsRuntime(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == Runtime
}

// CodeOf returns the failure code of err, or "" if err is not a failure.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
