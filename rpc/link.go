package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/sigurn/crc16"
)

// StreamLink frame layout:
//
//	0x7e | length u16 LE | payload | crc16 u16 LE
//
// The CRC (CCITT-FALSE) covers the length and the payload. A frame with a bad
// CRC or an impossible length is skipped by resynchronising on the next
// sync byte.
const (
	streamSync       = 0x7e
	streamHeaderSize = 3
	streamTrailer    = 2

	// DefaultMaxPacket bounds payloads accepted by a StreamLink.
	DefaultMaxPacket = 1024
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// StreamLink frames packets over a byte stream such as a serial port. Reads
// of the underlying stream should return periodically (a read timeout) so a
// cancelled context is noticed; a read of zero bytes with no error is treated
// as such a timeout.
type StreamLink struct {
	rw        io.ReadWriter
	maxPacket int

	wmu sync.Mutex
	rmu sync.Mutex
	buf []byte
}

// NewStreamLink frames packets over rw.
func NewStreamLink(rw io.ReadWriter) *StreamLink {
	return &StreamLink{rw: rw, maxPacket: DefaultMaxPacket}
}

// SetMaxPacket changes the largest accepted payload.
func (l *StreamLink) SetMaxPacket(n int) { l.maxPacket = n }

// EncodeStreamFrame returns the framed form of packet.
func EncodeStreamFrame(packet []byte) []byte {
	frame := make([]byte, 0, streamHeaderSize+len(packet)+streamTrailer)
	frame = append(frame, streamSync)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(packet)))
	frame = append(frame, packet...)
	sum := crc16.Checksum(frame[1:], crcTable)
	return binary.LittleEndian.AppendUint16(frame, sum)
}

// WritePacket frames and writes packet.
func (l *StreamLink) WritePacket(ctx context.Context, packet []byte) error {
	if len(packet) > l.maxPacket {
		return fmt.Errorf("packet of %d bytes exceeds limit %d", len(packet), l.maxPacket)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_, err := l.rw.Write(EncodeStreamFrame(packet))
	return err
}

// ReadPacket returns the next intact packet.
func (l *StreamLink) ReadPacket(ctx context.Context) ([]byte, error) {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	chunk := make([]byte, 256)
	for {
		if packet, ok := l.extract(); ok {
			return packet, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := l.rw.Read(chunk)
		l.buf = append(l.buf, chunk[:n]...)
		if err != nil {
			if n > 0 {
				continue
			}
			return nil, err
		}
	}
}

// extract pops the first valid frame from the buffer, discarding garbage
// before it.
func (l *StreamLink) extract() ([]byte, bool) {
	for {
		start := bytes.IndexByte(l.buf, streamSync)
		if start < 0 {
			l.buf = l.buf[:0]
			return nil, false
		}
		l.buf = l.buf[start:]
		if len(l.buf) < streamHeaderSize {
			return nil, false
		}
		n := int(binary.LittleEndian.Uint16(l.buf[1:]))
		if n > l.maxPacket {
			l.buf = l.buf[1:]
			continue
		}
		total := streamHeaderSize + n + streamTrailer
		if len(l.buf) < total {
			return nil, false
		}
		want := binary.LittleEndian.Uint16(l.buf[streamHeaderSize+n:])
		if crc16.Checksum(l.buf[1:streamHeaderSize+n], crcTable) != want {
			log.Debugf("dropping frame of %d bytes with bad checksum", n)
			l.buf = l.buf[1:]
			continue
		}
		packet := make([]byte, n)
		copy(packet, l.buf[streamHeaderSize:streamHeaderSize+n])
		l.buf = l.buf[total:]
		return packet, true
	}
}
