package upload

import (
	"errors"
	"fmt"
)

// Upload phases, as reported by UploadError.
const (
	PhaseImage    = "image"
	PhaseOpen     = "open"
	PhaseReset    = "reset"
	PhaseTransfer = "transfer"
	PhaseReadBack = "readback"
	PhaseFinalize = "finalize"
)

// ErrTimeout is returned when the bootloader stops answering.
var ErrTimeout = errors.New("bootloader did not respond")

// ErrRejected is returned when the bootloader answers a command with a
// failure status.
var ErrRejected = errors.New("bootloader rejected command")

// PortNotFoundError means no port was given and none matched the board.
type PortNotFoundError struct {
	Board string
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("no serial port found for board %s", e.Board)
}

// UploadError is a failure while talking to the bootloader.
type UploadError struct {
	Board  string
	Phase  string
	Offset int
	Err    error
}

func (e *UploadError) Error() string {
	if e.Phase == PhaseTransfer || e.Phase == PhaseReadBack {
		return fmt.Sprintf("upload to %s failed during %s at offset %#x: %v", e.Board, e.Phase, e.Offset, e.Err)
	}
	return fmt.Sprintf("upload to %s failed during %s: %v", e.Board, e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// VerificationError means the flash read back differs from the image.
type VerificationError struct {
	Board  string
	Offset int
	Want   byte
	Got    byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of %s failed at offset %#x: wrote %#02x, read %#02x",
		e.Board, e.Offset, e.Want, e.Got)
}
