// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the agent, session and transport layers.

package api

import (
	"errors"
	"fmt"
)

// Sentinels for each error kind. A *Error matches its kind's sentinel
// under errors.Is, so callers never need to inspect Kind directly.
var (
	ErrResolution  = errors.New("address resolution failed")
	ErrSocketSetup = errors.New("socket setup failed")
	ErrConnect     = errors.New("connect failed")
	ErrIO          = errors.New("i/o error")
	ErrAllocation  = errors.New("buffer allocation failed")
	ErrProtocol    = errors.New("protocol violation")
)

// Session-level usage errors returned synchronously by Session methods.
var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrEmptyPayload      = errors.New("payload is empty")
	ErrWriteBackpressure = errors.New("too many pending writes")
	ErrNotSupported      = errors.New("operation not supported on this platform")
)

// ErrorKind classifies failures reported by the engine.
type ErrorKind int

const (
	KindResolution ErrorKind = iota + 1
	KindSocketSetup
	KindConnect
	KindIO
	KindAllocation
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "ResolutionError"
	case KindSocketSetup:
		return "SocketSetupError"
	case KindConnect:
		return "ConnectError"
	case KindIO:
		return "IOError"
	case KindAllocation:
		return "AllocationError"
	case KindProtocol:
		return "ProtocolError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindResolution:
		return ErrResolution
	case KindSocketSetup:
		return ErrSocketSetup
	case KindConnect:
		return ErrConnect
	case KindIO:
		return ErrIO
	case KindAllocation:
		return ErrAllocation
	case KindProtocol:
		return ErrProtocol
	}
	return nil
}

// Error is a classified failure with the operation and address it
// happened on. Err carries the underlying cause (usually a syscall errno).
type Error struct {
	Kind ErrorKind
	Op   string
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Op
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewError creates a classified error for op.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithAddr records the endpoint the failing operation targeted.
func (e *Error) WithAddr(addr string) *Error {
	e.Addr = addr
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
