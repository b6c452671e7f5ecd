package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/chazu/noderpc/board"
	"github.com/chazu/noderpc/codegen"
)

// handleBuildCommand processes `noderpc build`.
// Usage:
//
//	noderpc build [BOARD...] [--parallel N] [--toolchain-home PATH] [--diagnostics]
func (c *cli) handleBuildCommand(ctx context.Context, args []string) error {
	flags, dir := newFlagSet("build")
	parallel := flags.Int("parallel", 0, "boards compiled at once (default from noderpc.toml)")
	home := flags.String("toolchain-home", "", "arduino-cli data `directory`")
	showDiagnostics := flags.Bool("diagnostics", false, "print compiler output of failed boards")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	targets, err := catalogFromManifest(m).Resolve(flags.Args(), m.Build.DefaultBoards...)
	if err != nil {
		return err
	}

	libs, err := libraryDirs(m)
	if err != nil {
		return err
	}

	headerName := dispatchHeaderName(m, m.RPC.Classes[0])
	digest, err := codegen.ReadHeaderDigest(filepath.Join(m.SketchDir(), headerName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	toolchain := c.toolchain
	if toolchain == nil {
		arduino := &board.ArduinoCLI{Binary: m.Build.Toolchain, Home: m.ToolchainHome()}
		if *home != "" {
			arduino.Home = *home
		}
		toolchain = arduino
	}
	if *parallel <= 0 {
		*parallel = m.Build.Parallel
	}

	ledger, err := board.OpenLedgerIn(m.FirmwareDir())
	if err != nil {
		return err
	}
	defer ledger.Close()

	matrix := &board.Matrix{
		Toolchain:      toolchain,
		Root:           m.FirmwareDir(),
		SketchDir:      m.SketchDir(),
		DispatchHeader: headerName,
		Libraries:      libs,
		Project:        m.Project.Name,
		Version:        m.Project.Version,
		ProtocolDigest: digest,
		Parallel:       *parallel,
		Ledger:         ledger,
	}
	report, err := matrix.Build(ctx, targets)
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		if res.Failure != nil {
			fmt.Fprintf(c.stdout, "%-12s FAILED  %v\n", res.Board, res.Failure.Err)
			if *showDiagnostics && res.Failure.Diagnostics != "" {
				for _, line := range strings.Split(strings.TrimRight(res.Failure.Diagnostics, "\n"), "\n") {
					fmt.Fprintf(c.stdout, "    %s\n", line)
				}
			}
			continue
		}
		fmt.Fprintf(c.stdout, "%-12s ok      %s\n", res.Board, rel(m.Dir, res.Artifact.Path))
	}

	if failures := report.Failures(); len(failures) > 0 {
		return &exitError{
			code: exitBuildFailed,
			err:  fmt.Errorf("%d of %d boards failed to build", len(failures), len(report.Results)),
		}
	}
	return nil
}
