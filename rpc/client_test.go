package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// scriptedLink answers each written request with whatever respond returns.
type scriptedLink struct {
	respond func(req Request) [][]byte
	queue   [][]byte
	writes  int
}

func (l *scriptedLink) WritePacket(ctx context.Context, packet []byte) error {
	l.writes++
	req, err := ParseRequest(packet)
	if err != nil {
		return err
	}
	l.queue = append(l.queue, l.respond(req)...)
	return nil
}

func (l *scriptedLink) ReadPacket(ctx context.Context) ([]byte, error) {
	if len(l.queue) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := l.queue[0]
	l.queue = l.queue[1:]
	return p, nil
}

func TestClient_CallOK(t *testing.T) {
	link := &scriptedLink{respond: func(req Request) [][]byte {
		return [][]byte{AppendResponse(nil, req.ID, req.Command, StatusOK, []byte{0xaa})}
	}}
	c := NewClient(link)

	reply, err := c.Call(context.Background(), 4, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(reply, []byte{0xaa}) {
		t.Errorf("reply = % x", reply)
	}
}

func TestClient_DiscardsStaleResponses(t *testing.T) {
	link := &scriptedLink{respond: func(req Request) [][]byte {
		return [][]byte{
			{0x01},
			AppendResponse(nil, req.ID-1, req.Command, StatusOK, []byte{0x01}),
			AppendResponse(nil, req.ID, req.Command+1, StatusOK, []byte{0x02}),
			AppendResponse(nil, req.ID, req.Command, StatusOK, []byte{0x03}),
		}
	}}
	c := NewClient(link)

	reply, err := c.Call(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(reply, []byte{0x03}) {
		t.Errorf("reply = % x, want 03", reply)
	}
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{StatusUnsupportedCommand, ErrUnsupportedCommand},
		{StatusMalformedRequest, ErrMalformedRequest},
		{StatusResponseOverflow, ErrResponseOverflow},
	}
	for _, tt := range tests {
		link := &scriptedLink{respond: func(req Request) [][]byte {
			return [][]byte{AppendResponse(nil, req.ID, req.Command, tt.status, []byte{0xff})}
		}}
		_, err := NewClient(link).Call(context.Background(), 9, nil)

		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			t.Fatalf("status %s: expected RPCError, got %v", tt.status, err)
		}
		if rpcErr.Command != 9 || rpcErr.Status != tt.status {
			t.Errorf("RPCError = %+v", rpcErr)
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
		}
	}
}

func TestClient_Timeout(t *testing.T) {
	link := &scriptedLink{respond: func(Request) [][]byte { return nil }}
	c := NewClient(link, WithTimeout(20*time.Millisecond))

	_, err := c.Call(context.Background(), 1, nil)
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestClient_RequestIDsAdvance(t *testing.T) {
	var ids []uint16
	link := &scriptedLink{respond: func(req Request) [][]byte {
		ids = append(ids, req.ID)
		return [][]byte{AppendResponse(nil, req.ID, req.Command, StatusOK, nil)}
	}}
	c := NewClient(link)
	for i := 0; i < 3; i++ {
		if _, err := c.Call(context.Background(), 0, nil); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	if len(ids) != 3 || ids[0] == ids[1] || ids[1] == ids[2] {
		t.Errorf("request ids = %v, want distinct", ids)
	}
}

// loopback is an io.ReadWriter whose reads drain whatever was written.
type loopback struct {
	bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.Len() == 0 {
		return 0, io.EOF
	}
	return l.Buffer.Read(p)
}

func TestStreamLink_RoundTrip(t *testing.T) {
	rw := &loopback{}
	link := NewStreamLink(rw)
	ctx := context.Background()

	for _, p := range [][]byte{{1, 2, 3}, {}, bytes.Repeat([]byte{0x7e}, 40)} {
		if err := link.WritePacket(ctx, p); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
		got, err := link.ReadPacket(ctx)
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("packet = % x, want % x", got, p)
		}
	}
}

func TestStreamLink_Resync(t *testing.T) {
	rw := &loopback{}
	good := EncodeStreamFrame([]byte{0x10, 0x20})
	corrupt := EncodeStreamFrame([]byte{0x01, 0x02})
	corrupt[len(corrupt)-1] ^= 0xff

	rw.Write([]byte{0x00, 0x13, 0x37})
	rw.Write(corrupt)
	rw.Write([]byte{0x7e, 0xff, 0xff})
	rw.Write(good)

	got, err := NewStreamLink(rw).ReadPacket(context.Background())
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(got, []byte{0x10, 0x20}) {
		t.Errorf("packet = % x", got)
	}
}

func TestStreamLink_EOF(t *testing.T) {
	_, err := NewStreamLink(&loopback{}).ReadPacket(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
