package upload

import (
	"fmt"
	"strings"
	"time"
)

// device consumes complete commands from in and returns its replies.
type device interface {
	consume(in []byte) (rest, reply []byte)
}

// fakePort is an in-memory serial port in front of a scripted bootloader.
type fakePort struct {
	dev    device
	in     []byte
	out    []byte
	resets int
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.out) == 0 {
		return 0, nil
	}
	n := copy(b, p.out)
	p.out = p.out[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.in = append(p.in, b...)
	for {
		rest, reply := p.dev.consume(p.in)
		if len(rest) == len(p.in) {
			break
		}
		p.in = rest
		p.out = append(p.out, reply...)
	}
	return len(b), nil
}

func (p *fakePort) SetDTR(dtr bool) error {
	if !dtr {
		p.resets++
	}
	return nil
}

func (p *fakePort) SetRTS(bool) error { return nil }

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.out = nil
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

// fakeFlash is device memory shared by both fake bootloaders.
type fakeFlash struct {
	mem []byte
	// word address from the last load address command
	addr uint32
	// corruptAt flips the byte at that offset when it is read back; -1 is off.
	corruptAt int
	// silent devices swallow everything.
	silent   bool
	progMode bool
	left     bool
	// rejectPage makes the nth page write (counting from 1) fail; 0 is off.
	rejectPage int
	pages      int
}

// reject counts a page write and reports whether the device refuses it.
func (f *fakeFlash) reject() bool {
	f.pages++
	return f.pages == f.rejectPage
}

func newFakeFlash(size int) fakeFlash {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xff
	}
	return fakeFlash{mem: mem, corruptAt: -1}
}

func (f *fakeFlash) program(data []byte) {
	copy(f.mem[f.addr*2:], data)
}

func (f *fakeFlash) read(n int) []byte {
	start := int(f.addr * 2)
	out := append([]byte(nil), f.mem[start:start+n]...)
	if f.corruptAt >= start && f.corruptAt < start+n {
		out[f.corruptAt-start] ^= 0x01
	}
	return out
}

type fakeV1 struct {
	fakeFlash
}

func newFakeV1() *fakeV1 { return &fakeV1{newFakeFlash(32 * 1024)} }

func (d *fakeV1) consume(in []byte) ([]byte, []byte) {
	if len(in) == 0 {
		return in, nil
	}
	if d.silent {
		return nil, nil
	}
	ok := []byte{v1InSync, v1OK}
	switch in[0] {
	case v1GetSync, v1EnterProgMode, v1LeaveProgMode:
		if len(in) < 2 {
			return in, nil
		}
		switch in[0] {
		case v1EnterProgMode:
			d.progMode = true
		case v1LeaveProgMode:
			d.left = true
		}
		return in[2:], ok
	case v1LoadAddress:
		if len(in) < 4 {
			return in, nil
		}
		d.addr = uint32(in[1]) | uint32(in[2])<<8
		return in[4:], ok
	case v1ProgPage:
		if len(in) < 4 {
			return in, nil
		}
		n := int(in[1])<<8 | int(in[2])
		if len(in) < n+5 {
			return in, nil
		}
		if d.reject() {
			return in[n+5:], []byte{v1InSync, v1Failed}
		}
		d.program(in[4 : 4+n])
		return in[n+5:], ok
	case v1ReadPage:
		if len(in) < 5 {
			return in, nil
		}
		n := int(in[1])<<8 | int(in[2])
		reply := append([]byte{v1InSync}, d.read(n)...)
		return in[5:], append(reply, v1OK)
	}
	panic(fmt.Sprintf("fakeV1: unexpected byte %#02x", in[0]))
}

type fakeV2 struct {
	fakeFlash
}

func newFakeV2() *fakeV2 { return &fakeV2{newFakeFlash(256 * 1024)} }

func (d *fakeV2) consume(in []byte) ([]byte, []byte) {
	if len(in) < 5 {
		return in, nil
	}
	if d.silent {
		return nil, nil
	}
	size := int(in[2])<<8 | int(in[3])
	if len(in) < 5+size+1 {
		return in, nil
	}
	seq, body := in[1], in[5:5+size]
	rest := in[5+size+1:]

	answer := []byte{body[0], v2StatusOK}
	switch body[0] {
	case v2SignOn:
		answer = append(answer, 8)
		answer = append(answer, "AVRISP_2"...)
	case v2EnterProgModeISP:
		d.progMode = true
	case v2LeaveProgModeISP:
		d.left = true
	case v2LoadAddress:
		d.addr = uint32(body[1]&0x7f)<<24 | uint32(body[2])<<16 | uint32(body[3])<<8 | uint32(body[4])
	case v2ProgramFlashISP:
		if d.reject() {
			answer[1] = v2StatusCmdFailed
			break
		}
		n := int(body[1])<<8 | int(body[2])
		d.program(body[10 : 10+n])
	case v2ReadFlashISP:
		n := int(body[1])<<8 | int(body[2])
		answer = append(answer, d.read(n)...)
		answer = append(answer, v2StatusOK)
	default:
		panic(fmt.Sprintf("fakeV2: unexpected command %#02x", body[0]))
	}
	return rest, encodeV2(seq, answer)
}

// intelHex renders data at address 0 as Intel HEX.
func intelHex(data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		rec := []byte{byte(end - off), byte(off >> 8), byte(off), 0x00}
		rec = append(rec, data[off:end]...)
		var sum byte
		for _, b := range rec {
			sum += b
		}
		rec = append(rec, -sum)
		fmt.Fprintf(&sb, ":%X\n", rec)
	}
	sb.WriteString(":00000001FF\n")
	return sb.String()
}
