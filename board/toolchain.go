package board

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CompileRequest is one board's compilation.
type CompileRequest struct {
	Target    BoardTarget
	SketchDir string
	OutputDir string
	// Libraries are header directories outside the sketch, such as
	// [rpc] include-dirs and resolved dependencies.
	Libraries []string
}

// Toolchain compiles a sketch. Diagnostics holds whatever the compiler
// printed and is returned on success and failure alike.
type Toolchain interface {
	Compile(ctx context.Context, req CompileRequest) (diagnostics []byte, err error)
}

// ArduinoCLI drives arduino-cli.
type ArduinoCLI struct {
	// Binary defaults to "arduino-cli" on PATH.
	Binary string
	// Home, when set, is used as the arduino-cli data directory.
	Home string
}

func (a *ArduinoCLI) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "arduino-cli"
}

// Args returns the arduino-cli arguments for req.
func (a *ArduinoCLI) Args(req CompileRequest) []string {
	args := []string{"compile", "--fqbn", req.Target.FQBN, "--output-dir", req.OutputDir}
	if len(req.Target.Flags) > 0 {
		args = append(args, "--build-property", "compiler.cpp.extra_flags="+strings.Join(req.Target.Flags, " "))
	}
	for _, lib := range req.Libraries {
		args = append(args, "--library", lib)
	}
	return append(args, req.SketchDir)
}

// Compile runs arduino-cli compile for one board.
func (a *ArduinoCLI) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.binary(), a.Args(req)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if a.Home != "" {
		cmd.Env = append(os.Environ(), "ARDUINO_DIRECTORIES_DATA="+a.Home)
	}

	log.Debugf("running %s %s", a.binary(), strings.Join(a.Args(req), " "))
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("arduino-cli compile for %s: %w", req.Target.Name, err)
	}
	return out.Bytes(), nil
}
