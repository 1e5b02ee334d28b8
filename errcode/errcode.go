package errcode

import (
	"errors"
	"strconv"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK              Code = "ok"
	Busy            Code = "busy"
	NotPowered      Code = "not_powered"
	Timeout         Code = "timeout"
	InvalidArgument Code = "invalid_argument"
	IOError         Code = "io_error"
	Failed          Code = "failed"
	Unsupported     Code = "unsupported"

	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	UnknownPort    Code = "unknown_port"
	UnknownBus     Code = "unknown_bus"
	UnknownPin     Code = "unknown_pin"
	NotReady       Code = "not_ready"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
// Port is -1 when the error is not tied to a USB-C port.
type E struct {
	C    Code
	Op   string
	Port int
	Err  error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Port >= 0 {
		s = "C" + strconv.Itoa(e.Port) + " " + s
	}
	if e.Err != nil && e.Err != error(e.C) {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Busy) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap attaches an operation and port to a code.
func Wrap(c Code, op string, port int, err error) error {
	if err == nil {
		err = c
	}
	return &E{C: c, Op: op, Port: port, Err: err}
}

// IO wraps a raw bus error as IOError. A nil err stays nil; an err that
// already carries a Code keeps it.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	if c := Of(err); c != Error {
		return err
	}
	return &E{C: IOError, Op: op, Port: -1, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// Is reports whether err carries code c.
func Is(err error, c Code) bool { return Of(err) == c }

// MapDriverErr maps low-level driver errors to a Code.
// Anything not already coded is treated as a failed bus transaction.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	if c := Of(err); c != Error {
		return c
	}
	return IOError
}
