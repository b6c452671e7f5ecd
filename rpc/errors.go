package rpc

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against an *RPCError carrying the
// corresponding status.
var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrMalformedRequest   = errors.New("malformed request")
	ErrResponseOverflow   = errors.New("response overflow")
	ErrTimeout            = errors.New("timed out waiting for response")
)

// RPCError is a non-OK status reported by the device.
type RPCError struct {
	Command uint8
	Status  Status
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("command %d: device reported %s", e.Command, e.Status)
}

// Is matches the sentinel for e.Status.
func (e *RPCError) Is(target error) bool {
	switch e.Status {
	case StatusUnsupportedCommand:
		return target == ErrUnsupportedCommand
	case StatusMalformedRequest:
		return target == ErrMalformedRequest
	case StatusResponseOverflow:
		return target == ErrResponseOverflow
	}
	return false
}

// TransportError is a failure of the link itself: a write or read error, a
// closed stream or a timeout.
type TransportError struct {
	Command uint8
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("command %d: transport: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a reply the proxy could not decode into the declared return
// type.
type DecodeError struct {
	Command uint8
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("command %d: decoding reply: %v", e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError is used by generated proxies.
func NewDecodeError(cmd uint8, err error) error {
	return &DecodeError{Command: cmd, Err: err}
}
