// noderpc generates the RPC bridge between a C++ node class and Go, builds the
// node firmware for a set of boards and flashes it over a serial bootloader.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"github.com/tliron/kutil/util"

	"github.com/chazu/noderpc/board"
	"github.com/chazu/noderpc/firmware"
	"github.com/chazu/noderpc/internal/logging"
	"github.com/chazu/noderpc/upload"
)

var log = logging.Logger("cli")

const (
	exitOK           = 0
	exitFailure      = 1
	exitNoFirmware   = 2
	exitPortNotFound = 3
	exitUpload       = 4
	exitVerification = 5
	exitBuildFailed  = 6
)

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

// cli is the state shared by subcommands.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// toolchain replaces arduino-cli when set.
	toolchain board.Toolchain
	// uploadOptions are appended to the uploader's defaults.
	uploadOptions []upload.Option
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	err := c.run(os.Args[1:])
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "noderpc: %v\n", err)
	}
	util.Exit(exitCode(err))
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}

	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	var noFirmware *firmware.NoFirmwareError
	if errors.As(err, &noFirmware) {
		return exitNoFirmware
	}
	var noPort *upload.PortNotFoundError
	if errors.As(err, &noPort) {
		return exitPortNotFound
	}
	var mismatch *upload.VerificationError
	if errors.As(err, &mismatch) {
		return exitVerification
	}
	var failed *upload.UploadError
	if errors.As(err, &failed) {
		return exitUpload
	}
	return exitFailure
}

func (c *cli) run(args []string) error {
	flags := pflag.NewFlagSet("noderpc", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	verbose := flags.CountP("verbose", "v", "increase log verbosity (repeatable)")
	quiet := flags.BoolP("quiet", "q", false, "log errors only")
	logPath := flags.String("log", "", "write log output to `file` instead of stderr")
	flags.Usage = func() { c.usage(flags) }

	if err := flags.Parse(args); err != nil {
		return err
	}

	verbosity := *verbose
	if *quiet {
		verbosity = -2
	}
	logging.Configure(verbosity, *logPath)

	rest := flags.Args()
	if len(rest) == 0 {
		c.usage(flags)
		return errors.New("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, cmdArgs := rest[0], rest[1:]
	log.Debugf("running %s %v", cmd, cmdArgs)
	switch cmd {
	case "generate":
		return c.handleGenerateCommand(cmdArgs)
	case "build":
		return c.handleBuildCommand(ctx, cmdArgs)
	case "list":
		return c.handleListCommand(cmdArgs)
	case "history":
		return c.handleHistoryCommand(ctx, cmdArgs)
	case "upload":
		return c.handleUploadCommand(ctx, cmdArgs)
	case "ports":
		return c.handlePortsCommand(cmdArgs)
	case "simulate":
		return c.handleSimulateCommand(ctx, cmdArgs)
	case "config":
		return c.handleConfigCommand(cmdArgs)
	case "help":
		c.usage(flags)
		return nil
	default:
		c.usage(flags)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) usage(flags *pflag.FlagSet) {
	w := c.stderr
	fmt.Fprintf(w, "Usage: noderpc [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  generate                 Introspect headers and write the dispatch header and Go proxy\n")
	fmt.Fprintf(w, "  build [BOARD...]         Compile the sketch for each board into the firmware registry\n")
	fmt.Fprintf(w, "  list [BOARD]             List firmware artifacts, newest first\n")
	fmt.Fprintf(w, "  history [BOARD]          Show recorded build attempts\n")
	fmt.Fprintf(w, "  upload BOARD             Flash the newest artifact for BOARD\n")
	fmt.Fprintf(w, "  ports                    List serial ports and the boards they match\n")
	fmt.Fprintf(w, "  simulate                 Print the command table and exercise it on a simulated node\n")
	fmt.Fprintf(w, "  config encode            Encode a node configuration message\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fmt.Fprint(w, flags.FlagUsages())
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  noderpc generate\n")
	fmt.Fprintf(w, "  noderpc build uno mega2560 --parallel 2\n")
	fmt.Fprintf(w, "  noderpc -v upload uno --port /dev/ttyACM0\n")
}

// newFlagSet returns a subcommand flag set with the shared --dir flag.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	dir := fs.String("dir", ".", "project `directory` (noderpc.toml is searched upward)")
	return fs, dir
}
