package upload

import (
	"context"
	"fmt"
)

// Bootloader speaks one bootloader protocol. Addresses are byte addresses
// and each block is one flash page.
type Bootloader interface {
	Reset(ctx context.Context) error
	TransferBlock(ctx context.Context, addr uint32, block []byte) error
	ReadBack(ctx context.Context, addr uint32, n int) ([]byte, error)
	Finalize(ctx context.Context) error
}

// NewBootloader returns the strategy for proto over port.
func NewBootloader(proto Protocol, port Port, timing Timing) (Bootloader, error) {
	l := &link{port: port, timing: timing}
	switch proto {
	case STK500v1:
		return &stk500v1{link: l}, nil
	case STK500v2:
		return &stk500v2{link: l}, nil
	}
	return nil, fmt.Errorf("unsupported upload protocol %q", proto)
}

// STK500 version 1, as implemented by optiboot.
const (
	v1CRCEOP        = 0x20
	v1InSync        = 0x14
	v1OK            = 0x10
	v1Failed        = 0x11
	v1GetSync       = 0x30
	v1EnterProgMode = 0x50
	v1LeaveProgMode = 0x51
	v1LoadAddress   = 0x55
	v1ProgPage      = 0x64
	v1ReadPage      = 0x74
	v1MemFlash      = 'F'
)

type stk500v1 struct {
	*link
}

// command sends cmd and expects INSYNC, n reply bytes, OK.
func (b *stk500v1) command(ctx context.Context, cmd []byte, n int) ([]byte, error) {
	if err := b.write(cmd); err != nil {
		return nil, err
	}
	reply, err := b.readFull(ctx, n+2)
	if err != nil {
		return nil, err
	}
	if reply[0] != v1InSync {
		return nil, fmt.Errorf("stk500v1: command %#02x: not in sync (got %#02x)", cmd[0], reply[0])
	}
	switch reply[n+1] {
	case v1OK:
	case v1Failed:
		return nil, fmt.Errorf("stk500v1: command %#02x: %w", cmd[0], ErrRejected)
	default:
		return nil, fmt.Errorf("stk500v1: command %#02x: unexpected reply %#02x", cmd[0], reply[n+1])
	}
	return reply[1 : n+1], nil
}

func (b *stk500v1) Reset(ctx context.Context) error {
	if err := b.pulseReset(ctx); err != nil {
		return err
	}
	var err error
	for attempt, n := 0, max(b.timing.SyncAttempts, 1); attempt < n; attempt++ {
		if _, err = b.command(ctx, []byte{v1GetSync, v1CRCEOP}, 0); err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.port.ResetInputBuffer()
	}
	if err != nil {
		return err
	}
	_, err = b.command(ctx, []byte{v1EnterProgMode, v1CRCEOP}, 0)
	return err
}

func (b *stk500v1) loadAddress(ctx context.Context, addr uint32) error {
	word := addr / 2
	_, err := b.command(ctx, []byte{v1LoadAddress, byte(word), byte(word >> 8), v1CRCEOP}, 0)
	return err
}

func (b *stk500v1) TransferBlock(ctx context.Context, addr uint32, block []byte) error {
	if err := b.loadAddress(ctx, addr); err != nil {
		return err
	}
	cmd := make([]byte, 0, len(block)+5)
	cmd = append(cmd, v1ProgPage, byte(len(block)>>8), byte(len(block)), v1MemFlash)
	cmd = append(cmd, block...)
	cmd = append(cmd, v1CRCEOP)
	_, err := b.command(ctx, cmd, 0)
	return err
}

func (b *stk500v1) ReadBack(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := b.loadAddress(ctx, addr); err != nil {
		return nil, err
	}
	return b.command(ctx, []byte{v1ReadPage, byte(n >> 8), byte(n), v1MemFlash, v1CRCEOP}, n)
}

func (b *stk500v1) Finalize(ctx context.Context) error {
	_, err := b.command(ctx, []byte{v1LeaveProgMode, v1CRCEOP}, 0)
	return err
}

// STK500 version 2, as implemented by the ATmega2560 bootloader.
const (
	v2MessageStart     = 0x1b
	v2Token            = 0x0e
	v2StatusOK         = 0x00
	v2StatusCmdFailed  = 0xc0
	v2SignOn           = 0x01
	v2LoadAddress      = 0x06
	v2EnterProgModeISP = 0x10
	v2LeaveProgModeISP = 0x11
	v2ProgramFlashISP  = 0x13
	v2ReadFlashISP     = 0x14
)

type stk500v2 struct {
	*link
	seq byte
}

func v2Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum ^= c
	}
	return sum
}

// encodeV2 frames body as MESSAGE_START seq size TOKEN body checksum.
func encodeV2(seq byte, body []byte) []byte {
	msg := make([]byte, 0, len(body)+6)
	msg = append(msg, v2MessageStart, seq, byte(len(body)>>8), byte(len(body)), v2Token)
	msg = append(msg, body...)
	return append(msg, v2Checksum(msg))
}

// exchange sends body and returns the answer body, which must echo the
// command and carry STATUS_CMD_OK.
func (b *stk500v2) exchange(ctx context.Context, body []byte) ([]byte, error) {
	seq := b.seq
	b.seq++
	if err := b.write(encodeV2(seq, body)); err != nil {
		return nil, err
	}

	head, err := b.readFull(ctx, 5)
	if err != nil {
		return nil, err
	}
	if head[0] != v2MessageStart || head[4] != v2Token {
		return nil, fmt.Errorf("stk500v2: command %#02x: bad message header % x", body[0], head)
	}
	if head[1] != seq {
		return nil, fmt.Errorf("stk500v2: command %#02x: sequence %d, want %d", body[0], head[1], seq)
	}
	size := int(head[2])<<8 | int(head[3])
	rest, err := b.readFull(ctx, size+1)
	if err != nil {
		return nil, err
	}
	if v2Checksum(append(head, rest[:size]...)) != rest[size] {
		return nil, fmt.Errorf("stk500v2: command %#02x: bad checksum", body[0])
	}
	answer := rest[:size]
	if len(answer) < 2 || answer[0] != body[0] {
		return nil, fmt.Errorf("stk500v2: command %#02x: unexpected answer % x", body[0], answer)
	}
	if answer[1] != v2StatusOK {
		return nil, fmt.Errorf("stk500v2: command %#02x: status %#02x: %w", body[0], answer[1], ErrRejected)
	}
	return answer, nil
}

func (b *stk500v2) Reset(ctx context.Context) error {
	if err := b.pulseReset(ctx); err != nil {
		return err
	}
	var err error
	for attempt, n := 0, max(b.timing.SyncAttempts, 1); attempt < n; attempt++ {
		if _, err = b.exchange(ctx, []byte{v2SignOn}); err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.port.ResetInputBuffer()
	}
	if err != nil {
		return err
	}
	// timeout, stabDelay, cmdexeDelay, synchLoops, byteDelay, pollValue,
	// pollIndex, then the programming-enable instruction.
	_, err = b.exchange(ctx, []byte{v2EnterProgModeISP, 200, 100, 25, 32, 0, 0x53, 3, 0xac, 0x53, 0x00, 0x00})
	return err
}

func (b *stk500v2) loadAddress(ctx context.Context, addr uint32) error {
	word := addr / 2
	// Bit 31 asks the bootloader to also load the extended address byte.
	_, err := b.exchange(ctx, []byte{v2LoadAddress, byte(word>>24) | 0x80, byte(word >> 16), byte(word >> 8), byte(word)})
	return err
}

func (b *stk500v2) TransferBlock(ctx context.Context, addr uint32, block []byte) error {
	if err := b.loadAddress(ctx, addr); err != nil {
		return err
	}
	body := make([]byte, 0, len(block)+10)
	body = append(body, v2ProgramFlashISP, byte(len(block)>>8), byte(len(block)),
		0xc1, 0x0a, 0x40, 0x4c, 0x20, 0x00, 0x00)
	body = append(body, block...)
	_, err := b.exchange(ctx, body)
	return err
}

func (b *stk500v2) ReadBack(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := b.loadAddress(ctx, addr); err != nil {
		return nil, err
	}
	answer, err := b.exchange(ctx, []byte{v2ReadFlashISP, byte(n >> 8), byte(n), 0x20})
	if err != nil {
		return nil, err
	}
	// cmd, status, data..., status
	if len(answer) != n+3 {
		return nil, fmt.Errorf("stk500v2: read flash: got %d bytes, want %d", len(answer)-3, n)
	}
	return answer[2 : n+2], nil
}

func (b *stk500v2) Finalize(ctx context.Context) error {
	_, err := b.exchange(ctx, []byte{v2LeaveProgModeISP, 1, 1})
	return err
}
