package node

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/noderpc/rpc"
)

func demoTable() *rpc.CommandTable {
	return rpc.NewCommandTable("Node", []rpc.MethodSignature{
		{Name: "set_voltage", Params: []rpc.Param{{Name: "value", Type: rpc.Float32}}, Return: rpc.Void},
		{Name: "get_voltage", Return: rpc.Float32},
		{Name: "str_echo", Params: []rpc.Param{{Name: "msg", Type: rpc.Uint8Array}}, Return: rpc.Uint8Array},
		{Name: "sum", Params: []rpc.Param{{Name: "values", Type: rpc.Uint16Array}}, Return: rpc.Uint32},
	})
}

func demoSim(opts ...Option) *Sim {
	s := NewSim(demoTable(), opts...)
	var voltage float32
	s.Handle("set_voltage", func(args []any) any {
		voltage = args[0].(float32)
		return nil
	})
	s.Handle("get_voltage", func([]any) any { return voltage })
	s.Handle("str_echo", func(args []any) any { return args[0].([]byte) })
	s.Handle("sum", func(args []any) any {
		var total uint32
		for _, v := range args[0].([]uint16) {
			total += uint32(v)
		}
		return total
	})
	return s
}

func call(t *testing.T, c *rpc.Client, table *rpc.CommandTable, method string, args ...any) ([]byte, error) {
	t.Helper()
	cmd, ok := table.ByName(method)
	if !ok {
		t.Fatalf("no method %s", method)
	}
	enc := rpc.NewEncoder()
	for i, p := range cmd.Method.Params {
		if err := enc.PutValue(p.Type, args[i]); err != nil {
			t.Fatalf("PutValue: %v", err)
		}
	}
	payload, err := enc.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	return c.Call(context.Background(), uint8(cmd.ID), payload)
}

func TestSim_SetThenGetVoltage(t *testing.T) {
	s := demoSim()
	c := rpc.NewClient(s)

	reply, err := call(t, c, s.Table(), "set_voltage", float32(3.3))
	if err != nil {
		t.Fatalf("set_voltage: %v", err)
	}
	if len(reply) != 0 {
		t.Errorf("void reply carried %d bytes", len(reply))
	}

	reply, err = call(t, c, s.Table(), "get_voltage")
	if err != nil {
		t.Fatalf("get_voltage: %v", err)
	}
	dec := rpc.NewDecoder(reply)
	got := dec.Float32()
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got != float32(3.3) {
		t.Errorf("get_voltage = %v, want 3.3", got)
	}
}

func TestSim_UnsupportedCommand(t *testing.T) {
	s := demoSim()
	resp, err := rpc.ParseResponse(s.Dispatch(rpc.AppendRequest(nil, 7, 200, nil)))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Status != rpc.StatusUnsupportedCommand || resp.ID != 7 || resp.Command != 200 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Payload) != 0 {
		t.Errorf("unsupported reply carried payload % x", resp.Payload)
	}

	_, err = rpc.NewClient(s).Call(context.Background(), 200, nil)
	if !errors.Is(err, rpc.ErrUnsupportedCommand) {
		t.Errorf("Call = %v, want ErrUnsupportedCommand", err)
	}
}

func TestSim_MalformedRequests(t *testing.T) {
	s := demoSim()
	tests := []struct {
		name string
		cmd  uint8
		args []byte
	}{
		{"short float", 0, []byte{0x00, 0x00}},
		{"trailing byte", 1, []byte{0x01}},
		{"array count past end", 2, []byte{0x05, 0x00, 0x01}},
		{"scratch overflow", 3, append([]byte{0x50, 0x00}, make([]byte, 0xa0)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := rpc.ParseResponse(s.Dispatch(rpc.AppendRequest(nil, 1, tt.cmd, tt.args)))
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if resp.Status != rpc.StatusMalformedRequest {
				t.Errorf("status = %s, want malformed request", resp.Status)
			}
		})
	}
}

func TestSim_ResponseOverflow(t *testing.T) {
	s := demoSim(WithOutputSize(8))
	c := rpc.NewClient(s)

	if _, err := call(t, c, s.Table(), "str_echo", []byte{1, 2}); err != nil {
		t.Fatalf("small echo: %v", err)
	}
	_, err := call(t, c, s.Table(), "str_echo", []byte{1, 2, 3, 4, 5})
	if !errors.Is(err, rpc.ErrResponseOverflow) {
		t.Errorf("large echo = %v, want ErrResponseOverflow", err)
	}
}

func TestSim_WideArray(t *testing.T) {
	s := demoSim()
	reply, err := call(t, rpc.NewClient(s), s.Table(), "sum", []uint16{1, 2, 0xffff})
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if got := rpc.NewDecoder(reply).Uint32(); got != 0x10002 {
		t.Errorf("sum = %#x", got)
	}
}

func TestSim_ShortRequestDropped(t *testing.T) {
	if resp := demoSim().Dispatch([]byte{0x01, 0x00}); resp != nil {
		t.Errorf("expected no response, got % x", resp)
	}
}

func TestSim_HandleUnknownMethod(t *testing.T) {
	if err := demoSim().Handle("nope", func([]any) any { return nil }); err == nil {
		t.Error("expected error registering an unknown method")
	}
}
