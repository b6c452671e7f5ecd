package rpc

import (
	"encoding/binary"
	"fmt"
)

// Frame header sizes.
const (
	RequestHeaderSize  = 3 // request id u16, command id u8
	ResponseHeaderSize = 4 // request id u16, command id u8, status u8
)

// Status is the one-byte outcome a dispatcher reports with every response.
type Status uint8

const (
	StatusOK                 Status = 0
	StatusUnsupportedCommand Status = 1
	StatusMalformedRequest   Status = 2
	StatusResponseOverflow   Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnsupportedCommand:
		return "unsupported command"
	case StatusMalformedRequest:
		return "malformed request"
	case StatusResponseOverflow:
		return "response overflow"
	}
	return fmt.Sprintf("status %d", uint8(s))
}

// Request is a decoded request frame. Args aliases the frame.
type Request struct {
	ID      uint16
	Command uint8
	Args    []byte
}

// Response is a decoded response frame. Payload aliases the frame and is
// empty unless Status is StatusOK.
type Response struct {
	ID      uint16
	Command uint8
	Status  Status
	Payload []byte
}

// AppendRequest appends a request frame to dst.
func AppendRequest(dst []byte, id uint16, cmd uint8, args []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, id)
	dst = append(dst, cmd)
	return append(dst, args...)
}

// ParseRequest splits a request frame.
func ParseRequest(frame []byte) (Request, error) {
	if len(frame) < RequestHeaderSize {
		return Request{}, fmt.Errorf("request frame of %d bytes: %w", len(frame), ErrShortBuffer)
	}
	return Request{
		ID:      binary.LittleEndian.Uint16(frame),
		Command: frame[2],
		Args:    frame[RequestHeaderSize:],
	}, nil
}

// AppendResponse appends a response frame to dst. The payload is dropped for
// any status other than StatusOK.
func AppendResponse(dst []byte, id uint16, cmd uint8, status Status, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, id)
	dst = append(dst, cmd, uint8(status))
	if status == StatusOK {
		dst = append(dst, payload...)
	}
	return dst
}

// ParseResponse splits a response frame.
func ParseResponse(frame []byte) (Response, error) {
	if len(frame) < ResponseHeaderSize {
		return Response{}, fmt.Errorf("response frame of %d bytes: %w", len(frame), ErrShortBuffer)
	}
	return Response{
		ID:      binary.LittleEndian.Uint16(frame),
		Command: frame[2],
		Status:  Status(frame[3]),
		Payload: frame[ResponseHeaderSize:],
	}, nil
}
