package upload

import (
	"context"
	"io"
	"sort"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the part of a serial port the bootloaders use. serial.Port
// satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens a port at a baud rate.
type Opener func(name string, baud int) (Port, error)

// Detector lists the serial ports present.
type Detector func() ([]*enumerator.PortDetails, error)

// OpenSerial opens a real serial port, 8N1.
func OpenSerial(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// ListPorts returns the serial ports present, sorted by name.
func ListPorts() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// MatchPort returns the first USB port whose VID:PID belongs to p.
func MatchPort(ports []*enumerator.PortDetails, p Profile) (string, bool) {
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		for _, id := range p.USB {
			if id.Matches(port.VID, port.PID) {
				return port.Name, true
			}
		}
	}
	return "", false
}

// IdentifyPort returns the boards whose USB ids match port.
func IdentifyPort(port *enumerator.PortDetails, ps Profiles) []string {
	var boards []string
	if !port.IsUSB {
		return nil
	}
	for name, p := range ps {
		for _, id := range p.USB {
			if id.Matches(port.VID, port.PID) {
				boards = append(boards, name)
				break
			}
		}
	}
	sort.Strings(boards)
	return boards
}

// Timing controls the reset handshake and read timeouts.
type Timing struct {
	// ResetPulse is how long DTR/RTS are held low.
	ResetPulse time.Duration
	// Settle is the wait after releasing reset before talking.
	Settle       time.Duration
	ReadTimeout  time.Duration
	SyncAttempts int
}

// DefaultTiming suits the optiboot and stk500v2 Arduino bootloaders.
var DefaultTiming = Timing{
	ResetPulse:   250 * time.Millisecond,
	Settle:       50 * time.Millisecond,
	ReadTimeout:  500 * time.Millisecond,
	SyncAttempts: 10,
}

// link wraps a Port with the helpers both protocols share.
type link struct {
	port   Port
	timing Timing
}

// pulseReset toggles DTR/RTS, which resets Arduino boards into their
// bootloader, and discards anything the sketch printed.
func (l *link) pulseReset(ctx context.Context) error {
	if err := l.port.SetDTR(false); err != nil {
		return err
	}
	if err := l.port.SetRTS(false); err != nil {
		return err
	}
	if err := sleep(ctx, l.timing.ResetPulse); err != nil {
		return err
	}
	if err := l.port.SetDTR(true); err != nil {
		return err
	}
	if err := l.port.SetRTS(true); err != nil {
		return err
	}
	if err := sleep(ctx, l.timing.Settle); err != nil {
		return err
	}
	return l.port.ResetInputBuffer()
}

func (l *link) write(b []byte) error {
	_, err := l.port.Write(b)
	return err
}

// readFull reads exactly n bytes. A read that returns nothing means the
// port's read timeout expired.
func (l *link) readFull(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)
	for got := 0; got < n; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := l.port.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, ErrTimeout
		}
		got += m
	}
	return buf, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
