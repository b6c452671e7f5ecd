package codegen

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/chazu/noderpc/rpc"
)

func voltageTable() *rpc.CommandTable {
	return rpc.NewCommandTable("Node", []rpc.MethodSignature{
		{Name: "set_voltage", Params: []rpc.Param{{Name: "value", Type: rpc.Float32}}, Return: rpc.Void, DeclaredIn: "Node"},
		{Name: "get_voltage", Return: rpc.Float32, DeclaredIn: "Node"},
	})
}

func fullTable() *rpc.CommandTable {
	return rpc.NewCommandTable("Node", []rpc.MethodSignature{
		{Name: "ram_free", Return: rpc.Uint32, DeclaredIn: "BaseNode"},
		{Name: "set_i2c_address", Params: []rpc.Param{{Name: "address", Type: rpc.Uint8}}, Return: rpc.Void, DeclaredIn: "Node"},
		{Name: "str_echo", Params: []rpc.Param{{Name: "msg", Type: rpc.Uint8Array}}, Return: rpc.Uint8Array, DeclaredIn: "BaseNode"},
		{Name: "analog_burst", Params: []rpc.Param{
			{Name: "pin", Type: rpc.Uint8},
			{Name: "buffer", Type: rpc.Uint16Array},
		}, Return: rpc.Uint16Array, DeclaredIn: "Node"},
		{Name: "set_gains", Params: []rpc.Param{{Name: "type", Type: rpc.FloatArray}}, Return: rpc.Bool, DeclaredIn: "Node"},
		{Name: "offset", Params: []rpc.Param{{Name: "delta", Type: rpc.Int16}, {Name: "", Type: rpc.Int64}}, Return: rpc.Int8, DeclaredIn: "Node"},
	})
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := Options{ProxyPackage: "nodeproxy", Includes: []string{"<Array.h>"}}

	a, err := Generate(fullTable(), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(fullTable(), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(a.DispatchHeader, b.DispatchHeader) {
		t.Error("dispatch header differs between runs")
	}
	if !bytes.Equal(a.Proxy, b.Proxy) {
		t.Error("proxy differs between runs")
	}
	if a.Digest != fullTable().Digest() {
		t.Errorf("Digest = %s", a.Digest)
	}
}

func TestGenerate_Golden(t *testing.T) {
	a, err := Generate(fullTable(), Options{ProxyPackage: "nodeproxy", Includes: []string{"<Array.h>"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for name, got := range map[string][]byte{
		"node_rpc.h.golden":    a.DispatchHeader,
		"node_proxy.go.golden": a.Proxy,
	} {
		path := filepath.Join("testdata", name)
		if os.Getenv("UPDATE_GOLDEN") != "" {
			if err := os.WriteFile(path, got, 0o644); err != nil {
				t.Fatalf("write golden file: %v", err)
			}
			t.Logf("wrote golden file: %s", path)
			continue
		}
		want, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read golden file: %v (run with UPDATE_GOLDEN=1 to create it)", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s does not match generated output; rerun with UPDATE_GOLDEN=1 if the change is intended", path)
		}
	}
}

func TestRenderProxy_Shape(t *testing.T) {
	out, err := RenderProxy(voltageTable(), Options{})
	if err != nil {
		t.Fatalf("RenderProxy: %v", err)
	}
	code := string(out)

	patterns := []string{
		`^// Code generated by noderpc from class Node\. DO NOT EDIT\.`,
		`package proxy`,
		`rpc "github.com/chazu/noderpc/rpc"`,
		`const ProtocolDigest = "` + voltageTable().Digest() + `"`,
		`CmdSetVoltage\s+uint8\s+= 0`,
		`CmdGetVoltage\s+uint8\s+= 1`,
		`type NodeProxy struct`,
		`func NewNodeProxy\(caller rpc\.Caller\) \*NodeProxy`,
		`func \(p \*NodeProxy\) SetVoltage\(ctx context\.Context, value float32\) error`,
		`enc\.PutFloat32\(value\)`,
		`func \(p \*NodeProxy\) GetVoltage\(ctx context\.Context\) \(float32, error\)`,
		`p\.caller\.Call\(ctx, CmdGetVoltage, nil\)`,
		`result := dec\.Float32\(\)`,
		`fmt\.Errorf\("Node\.get_voltage: %w", err\)`,
	}
	for _, pat := range patterns {
		if !regexp.MustCompile(`(?m)` + pat).MatchString(code) {
			t.Errorf("proxy does not match %s\n%s", pat, code)
		}
	}
}

func TestRenderProxy_ParamNames(t *testing.T) {
	out, err := RenderProxy(fullTable(), Options{})
	if err != nil {
		t.Fatalf("RenderProxy: %v", err)
	}
	code := string(out)
	for _, want := range []string{
		"SetGains(ctx context.Context, typeArg []float32) (bool, error)",
		"Offset(ctx context.Context, delta int16, arg1 int64) (int8, error)",
		"AnalogBurst(ctx context.Context, pin uint8, buffer []uint16) ([]uint16, error)",
		"StrEcho(ctx context.Context, msg []byte) ([]byte, error)",
		"return nil, fmt.Errorf(",
		"return false, fmt.Errorf(",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("proxy missing %q", want)
		}
	}
}

func TestRenderDispatchHeader_Shape(t *testing.T) {
	out, err := RenderDispatchHeader(voltageTable(), Options{Includes: []string{`"Array.h"`}, ScratchSize: 64})
	if err != nil {
		t.Fatalf("RenderDispatchHeader: %v", err)
	}
	hdr := string(out)

	for _, want := range []string{
		"#ifndef NODERPC_NODE_RPC_H",
		`#include "Array.h"`,
		"#define NODERPC_SCRATCH_SIZE 64",
		`const char PROTOCOL_DIGEST[] = "` + voltageTable().Digest() + `";`,
		"const uint16_t COMMAND_COUNT = 2;",
		"const uint8_t CMD_SET_VOLTAGE = 0;  // set_voltage(float)->void",
		"const uint8_t CMD_GET_VOLTAGE = 1;  // get_voltage()->float",
		"  case CMD_SET_VOLTAGE: {\n    float a0 = in.read_float();\n",
		"    node.set_voltage(a0);\n",
		"    float result = node.get_voltage();\n    out.write_float(result);\n",
		"    status = STATUS_UNSUPPORTED_COMMAND;",
		"template <typename NodeT>\nuint16_t noderpc_dispatch(",
	} {
		if !strings.Contains(hdr, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if strings.Contains(hdr, "Scratch scratch;") {
		t.Error("scratch buffer declared without wide array arguments")
	}
}

func TestRenderDispatchHeader_Arrays(t *testing.T) {
	out, err := RenderDispatchHeader(fullTable(), Options{})
	if err != nil {
		t.Fatalf("RenderDispatchHeader: %v", err)
	}
	hdr := string(out)
	for _, want := range []string{
		"  Scratch scratch;",
		"a0.data = (uint8_t *)in.take(a0.length);",
		"a1.data = (uint16_t *)scratch.take((uint32_t)a1.length * 2);",
		"a1.data[i] = (uint16_t)in.read_le(2);",
		"a0.data[i] = in.read_float();",
		"int16_t a0 = (int16_t)(uint16_t)in.read_le(2);",
		"int64_t a1 = (int64_t)(uint64_t)in.read_le(8);",
		"out.write_le(result ? 1 : 0, 1);",
		"out.write_le((uint64_t)result.data[i], 2);",
		"int8_t result = node.offset(a0, a1);",
	} {
		if !strings.Contains(hdr, want) {
			t.Errorf("header missing %q", want)
		}
	}
}

func TestRenderDispatchHeader_ArrayTypes(t *testing.T) {
	out, err := RenderDispatchHeader(voltageTable(), Options{Includes: []string{"<Array.h>"}})
	if err != nil {
		t.Fatalf("RenderDispatchHeader: %v", err)
	}
	hdr := string(out)

	// The fallback definitions come after the user's includes and are
	// skipped when one of them already provides the types.
	include := strings.Index(hdr, "#include <Array.h>")
	guard := strings.Index(hdr, "#ifndef NODERPC_ARRAY_TYPES\n#define NODERPC_ARRAY_TYPES\n")
	if include < 0 || guard < 0 || guard < include {
		t.Fatalf("array type guard at %d, include at %d", guard, include)
	}
	for _, typ := range []rpc.ParamType{
		rpc.Uint8Array, rpc.Int8Array, rpc.Uint16Array, rpc.Int16Array,
		rpc.Uint32Array, rpc.Int32Array, rpc.FloatArray,
	} {
		want := "struct " + typ.CName() + " { uint16_t length; " + typ.Elem().CName() + " *data; };"
		if !strings.Contains(hdr, want) {
			t.Errorf("header missing %q", want)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	sig := func(name string, params ...rpc.ParamType) rpc.MethodSignature {
		m := rpc.MethodSignature{Name: name, Return: rpc.Void, DeclaredIn: "Node"}
		for _, p := range params {
			m.Params = append(m.Params, rpc.Param{Type: p})
		}
		return m
	}

	tooMany := make([]rpc.MethodSignature, rpc.MaxCommands+1)
	for i := range tooMany {
		tooMany[i] = sig("m" + strings.Repeat("x", i))
	}

	tests := []struct {
		name    string
		methods []rpc.MethodSignature
		method  string
		msg     string
	}{
		{"overload", []rpc.MethodSignature{sig("write", rpc.Uint8), sig("write", rpc.Uint16)}, "write", "overloaded"},
		{"go collision", []rpc.MethodSignature{sig("set_voltage"), sig("setVoltage")}, "setVoltage", "collides"},
		{"reserved", []rpc.MethodSignature{sig("caller")}, "caller", "reserved"},
		{"void param", []rpc.MethodSignature{sig("f", rpc.Void)}, "f", "void"},
		{"too many", tooMany, "", "exceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(rpc.NewCommandTable("Node", tt.methods), Options{})
			var cgErr *CodeGenError
			if !errors.As(err, &cgErr) {
				t.Fatalf("expected CodeGenError, got %v", err)
			}
			if cgErr.Class != "Node" || cgErr.Method != tt.method {
				t.Errorf("CodeGenError = %+v", cgErr)
			}
			if !strings.Contains(cgErr.Msg, tt.msg) {
				t.Errorf("Msg %q does not mention %q", cgErr.Msg, tt.msg)
			}
		})
	}
}

func TestValidate_MaxCommandsAccepted(t *testing.T) {
	methods := make([]rpc.MethodSignature, rpc.MaxCommands)
	for i := range methods {
		methods[i] = rpc.MethodSignature{Name: "m" + strings.Repeat("x", i), Return: rpc.Void}
	}
	if err := Validate(rpc.NewCommandTable("Node", methods)); err != nil {
		t.Errorf("256 commands should fit a one-byte id: %v", err)
	}
}

func TestWriteArtifacts(t *testing.T) {
	a, err := Generate(voltageTable(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	dir := t.TempDir()
	hdr := filepath.Join(dir, "sketch", DispatchHeaderName("Node"))
	proxy := filepath.Join(dir, "proxy", ProxyFileName("Node"))

	if err := WriteArtifacts(a, hdr, proxy); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	for path, want := range map[string][]byte{hdr: a.DispatchHeader, proxy: a.Proxy} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s content mismatch", path)
		}
	}
}

func TestWriteArtifacts_NeitherOnFailure(t *testing.T) {
	a, err := Generate(voltageTable(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	hdr := filepath.Join(dir, "sketch", "node_rpc.h")
	proxy := filepath.Join(blocker, "node_proxy.go")

	if err := WriteArtifacts(a, hdr, proxy); err == nil {
		t.Fatal("expected error when the proxy directory cannot be created")
	}
	if _, err := os.Stat(hdr); !os.IsNotExist(err) {
		t.Errorf("header should not exist after a failed write: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "sketch"))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestWriteArtifacts_RestoresHeaderWhenProxyInstallFails(t *testing.T) {
	a, err := Generate(voltageTable(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	dir := t.TempDir()
	hdr := filepath.Join(dir, "sketch", "node_rpc.h")
	if err := os.MkdirAll(filepath.Dir(hdr), 0o755); err != nil {
		t.Fatal(err)
	}
	old := []byte("// previous header\n")
	if err := os.WriteFile(hdr, old, 0o644); err != nil {
		t.Fatal(err)
	}
	// A non-empty directory where the proxy should go: staging succeeds but
	// the final rename does not.
	proxy := filepath.Join(dir, "proxy", "node_proxy.go")
	if err := os.MkdirAll(filepath.Join(proxy, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := WriteArtifacts(a, hdr, proxy); err == nil {
		t.Fatal("expected error when the proxy cannot be installed")
	}
	got, err := os.ReadFile(hdr)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, old) {
		t.Errorf("header = %q, want the previous header back", got)
	}
	for _, d := range []string{filepath.Dir(hdr), filepath.Dir(proxy)} {
		entries, _ := os.ReadDir(d)
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				t.Errorf("temp file left behind: %s", filepath.Join(d, e.Name()))
			}
		}
	}
}

func TestNaming(t *testing.T) {
	tests := []struct{ in, snake, pascal string }{
		{"Node", "node", "Node"},
		{"FeedbackController", "feedback_controller", "FeedbackController"},
		{"ADCReader", "adc_reader", "ADCReader"},
		{"set_voltage", "set_voltage", "SetVoltage"},
		{"getVoltage", "get_voltage", "GetVoltage"},
		{"i2c_address", "i2c_address", "I2cAddress"},
	}
	for _, tt := range tests {
		if got := toSnake(tt.in); got != tt.snake {
			t.Errorf("toSnake(%q) = %q, want %q", tt.in, got, tt.snake)
		}
		if got := toPascal(tt.in); got != tt.pascal {
			t.Errorf("toPascal(%q) = %q, want %q", tt.in, got, tt.pascal)
		}
	}

	got := goParamNames([]string{"value", "value", "", "len", "sample_count", "err"})
	want := []string{"value", "value1", "arg2", "lenArg", "sampleCount", "errArg"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("goParamNames = %v, want %v", got, want)
	}
}

func TestReadHeaderDigest(t *testing.T) {
	a, err := Generate(voltageTable(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "node_rpc.h")
	if err := os.WriteFile(path, a.DispatchHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHeaderDigest(path)
	if err != nil {
		t.Fatalf("ReadHeaderDigest: %v", err)
	}
	if got != a.Digest {
		t.Errorf("digest = %s, want %s", got, a.Digest)
	}

	plain := filepath.Join(t.TempDir(), "plain.h")
	if err := os.WriteFile(plain, []byte("#pragma once\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeaderDigest(plain); err == nil {
		t.Error("expected error for a header without a digest")
	}
}
