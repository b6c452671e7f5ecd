// Package node simulates a device running a generated dispatch header. A Sim
// applies the same frame rules as the embedded dispatcher, so proxies and
// clients can be exercised without hardware.
package node

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/noderpc/rpc"
)

var log = commonlog.GetLogger("noderpc.node")

// Defaults match a typical AVR packet buffer and the generated
// NODERPC_SCRATCH_SIZE.
const (
	DefaultOutputSize  = 256
	DefaultScratchSize = 128
)

// HandlerFunc implements one method. args holds one value per parameter, as
// the Go type of its ParamType; the result must have the Go type of the
// method's return type, or be nil for void.
type HandlerFunc func(args []any) any

// Sim dispatches request frames to registered handlers.
type Sim struct {
	table       *rpc.CommandTable
	handlers    map[string]HandlerFunc
	outputSize  int
	scratchSize int
	replies     chan []byte
}

// Option configures a Sim.
type Option func(*Sim)

// WithOutputSize sets the response buffer size, frame header included.
func WithOutputSize(n int) Option {
	return func(s *Sim) { s.outputSize = n }
}

// WithScratchSize sets the space available to wide array arguments.
func WithScratchSize(n int) Option {
	return func(s *Sim) { s.scratchSize = n }
}

// NewSim returns a simulated node for table with no handlers registered.
func NewSim(table *rpc.CommandTable, opts ...Option) *Sim {
	s := &Sim{
		table:       table,
		handlers:    make(map[string]HandlerFunc),
		outputSize:  DefaultOutputSize,
		scratchSize: DefaultScratchSize,
		replies:     make(chan []byte, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the command table the node dispatches.
func (s *Sim) Table() *rpc.CommandTable { return s.table }

// Handle registers the implementation of a method.
func (s *Sim) Handle(method string, h HandlerFunc) error {
	if _, ok := s.table.ByName(method); !ok {
		return fmt.Errorf("class %s has no method %s", s.table.Class, method)
	}
	s.handlers[method] = h
	return nil
}

// Dispatch handles one request frame and returns the response frame, or nil
// when the request is too short to carry a header.
func (s *Sim) Dispatch(request []byte) []byte {
	req, err := rpc.ParseRequest(request)
	if err != nil || s.outputSize < rpc.ResponseHeaderSize {
		log.Debugf("dropping request: %v", err)
		return nil
	}
	reply := func(status rpc.Status, payload []byte) []byte {
		return rpc.AppendResponse(nil, req.ID, req.Command, status, payload)
	}

	cmd, ok := s.table.Lookup(req.Command)
	if !ok {
		return reply(rpc.StatusUnsupportedCommand, nil)
	}
	h, ok := s.handlers[cmd.Method.Name]
	if !ok {
		return reply(rpc.StatusUnsupportedCommand, nil)
	}

	dec := rpc.NewDecoder(req.Args)
	args := make([]any, len(cmd.Method.Params))
	scratch := 0
	for i, p := range cmd.Method.Params {
		args[i] = dec.Value(p.Type)
		if p.Type.IsArray() && p.Type.Width() > 1 && dec.Err() == nil {
			scratch += (arrayLen(args[i])*p.Type.Width() + 3) &^ 3
			if scratch > s.scratchSize {
				return reply(rpc.StatusMalformedRequest, nil)
			}
		}
	}
	if err := dec.Finish(); err != nil {
		return reply(rpc.StatusMalformedRequest, nil)
	}

	result := h(args)

	enc := rpc.NewEncoder()
	if err := enc.PutValue(cmd.Method.Return, result); err != nil {
		panic(fmt.Sprintf("node: handler for %s::%s: %v", s.table.Class, cmd.Method.Name, err))
	}
	payload, err := enc.Payload()
	if err != nil || len(payload) > s.outputSize-rpc.ResponseHeaderSize {
		return reply(rpc.StatusResponseOverflow, nil)
	}
	return reply(rpc.StatusOK, payload)
}

// WritePacket dispatches packet and queues the response for ReadPacket.
func (s *Sim) WritePacket(ctx context.Context, packet []byte) error {
	resp := s.Dispatch(packet)
	if resp == nil {
		return nil
	}
	select {
	case s.replies <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadPacket returns the next queued response.
func (s *Sim) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case resp := <-s.replies:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func arrayLen(v any) int {
	switch x := v.(type) {
	case []int8:
		return len(x)
	case []uint16:
		return len(x)
	case []int16:
		return len(x)
	case []uint32:
		return len(x)
	case []int32:
		return len(x)
	case []float32:
		return len(x)
	case []byte:
		return len(x)
	}
	return 0
}
