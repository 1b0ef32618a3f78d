package easyduplex

import (
	"context"
	"errors"
	"fmt"
)

// Error is a generic interface for error handling.
// An Error whose Fatal returns true is never wrapped into a ConnectError.
type Error interface {
	error
	Fatal() bool // should return true if the error is fatal, otherwise false.
}

var (
	_ Error = &PanicError{}
	_ Error = &Fault{}
)

var (
	// ErrSessionNotRunning is returned by Send when the session is not RUNNING.
	ErrSessionNotRunning = errors.New("session is not running")

	// ErrInterrupted is returned when the session was disconnected while connecting.
	ErrInterrupted = errors.New("session disconnected while connecting")

	// ErrInvalidAddress is returned when an Address can not be dialed or listened on.
	ErrInvalidAddress = errors.New("invalid address")
)

// StateError is returned when a session operation is invalid in the current Runstate.
type StateError struct {
	Message  string
	State    Runstate
	Required Runstate
}

func (e *StateError) Error() string {
	return e.Message
}

// ConnectError is returned when Connect or Accept failed.
// It always wraps the root cause.
type ConnectError struct {
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// StreamError is the I/O failure of a send or receive primitive.
type StreamError struct {
	Op  string // "recv" or "send"
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Origin tags where a Fault was raised.
type Origin int

const (
	OriginReader Origin = iota + 1
	OriginWriter
	OriginTransport
)

func (o Origin) String() string {
	switch o {
	case OriginReader:
		return "reader"
	case OriginWriter:
		return "writer"
	case OriginTransport:
		return "transport"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Fault is an error captured by the session machinery, tagged with its origin.
type Fault struct {
	Origin Origin
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Origin, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Fatal reports whether the underlying error is fatal.
func (f *Fault) Fatal() bool {
	return isFatal(f.Err)
}

// sameCause reports whether err carries the same underlying error as f,
// which happens when a shared transport reports one failure twice.
func (f *Fault) sameCause(err error) bool {
	if f == nil || err == nil {
		return false
	}
	cause := f.Err
	var se *StreamError
	if errors.As(cause, &se) {
		cause = se.Err
	}
	return errors.Is(err, cause)
}

// PanicError holds a value recovered from a panicking loop.
type PanicError struct {
	Value interface{}
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

func (pe *PanicError) Fatal() bool {
	return true
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isFatal(err error) bool {
	var e Error
	return errors.As(err, &e) && e.Fatal()
}
