package errors

import (
	"errors"
	"fmt"
)

// Code is a primary result code. Row and Done are execution signals, not
// failures.
type Code int

const (
	OK         Code = 0
	Error      Code = 1
	Internal   Code = 2
	Interrupt  Code = 9
	IOErr      Code = 10
	Corrupt    Code = 11
	Full       Code = 13
	TooBig     Code = 18
	Constraint Code = 19
	Mismatch   Code = 20
	Misuse     Code = 21
	NoMem      Code = 7
	Row        Code = 100
	Done       Code = 101
)

var codeNames = map[Code]string{
	OK:         "OK",
	Error:      "ERROR",
	Internal:   "INTERNAL",
	Interrupt:  "INTERRUPT",
	IOErr:      "IOERR",
	Corrupt:    "CORRUPT",
	Full:       "FULL",
	TooBig:     "TOOBIG",
	Constraint: "CONSTRAINT",
	Mismatch:   "MISMATCH",
	Misuse:     "MISUSE",
	NoMem:      "NOMEM",
	Row:        "ROW",
	Done:       "DONE",
}

// String returns the upper-case name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// sentinel returns the sentinel error a code unwraps to, or nil for the
// non-error codes.
func (c Code) sentinel() error {
	switch c {
	case NoMem:
		return ErrNoMem
	case TooBig:
		return ErrTooBig
	case Interrupt:
		return ErrInterrupt
	case Corrupt:
		return ErrCorrupt
	case IOErr:
		return ErrIOErr
	case Misuse:
		return ErrMisuse
	case Internal:
		return ErrInternal
	}
	return nil
}

// VMError is a failure raised while executing one instruction.
type VMError struct {
	Code Code   // Classified result code
	Op   string // Opcode name, empty when raised outside an instruction
	PC   int    // Address of the failing instruction
	Err  error  // Underlying error, if any
}

func (e *VMError) Error() string {
	msg := e.Code.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s at %d: %s", e.Op, e.PC, msg)
	}
	return msg
}

func (e *VMError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Code.sentinel()
}

// Is reports a match against the sentinel for this error's code so that
// errors.Is(err, ErrTooBig) holds even when Err is a plain message.
func (e *VMError) Is(target error) bool {
	s := e.Code.sentinel()
	return s != nil && s == target
}

// NewVM creates a VMError with the given code and formatted message.
func NewVM(code Code, format string, args ...interface{}) *VMError {
	return &VMError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf classifies an error into a result code. Errors that carry no
// classification are treated as collaborator I/O failures.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var vm *VMError
	if errors.As(err, &vm) {
		return vm.Code
	}
	switch {
	case errors.Is(err, ErrNoMem):
		return NoMem
	case errors.Is(err, ErrTooBig):
		return TooBig
	case errors.Is(err, ErrInterrupt):
		return Interrupt
	case errors.Is(err, ErrCorrupt):
		return Corrupt
	case errors.Is(err, ErrMisuse), errors.Is(err, ErrUnsupported):
		return Misuse
	case errors.Is(err, ErrInternal):
		return Internal
	case errors.Is(err, ErrIOErr):
		return IOErr
	}
	return IOErr
}
