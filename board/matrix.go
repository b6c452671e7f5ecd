package board

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/noderpc/firmware"
)

// BuildFailure reports one board that did not produce an image.
type BuildFailure struct {
	Board       string
	Diagnostics string
	Err         error
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("build for board %s failed: %v", e.Board, e.Err)
}

func (e *BuildFailure) Unwrap() error { return e.Err }

// PreconditionError stops a build before any board is compiled.
type PreconditionError struct {
	Path string
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("dispatch header %s: %v (run generate first)", e.Path, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Result is the outcome for one board. Exactly one of Artifact and Failure
// is set.
type Result struct {
	Board    string
	Artifact *firmware.Artifact
	Failure  *BuildFailure
}

// Report collects the results of one Build, in target order.
type Report struct {
	Results []Result
}

// Failures returns the failed boards.
func (r *Report) Failures() []*BuildFailure {
	var out []*BuildFailure
	for _, res := range r.Results {
		if res.Failure != nil {
			out = append(out, res.Failure)
		}
	}
	return out
}

// OK reports whether every board built.
func (r *Report) OK() bool { return len(r.Failures()) == 0 }

// Matrix builds one sketch for many boards.
type Matrix struct {
	Toolchain Toolchain
	// Root is the firmware registry root.
	Root      string
	SketchDir string
	// DispatchHeader is the generated header's file name inside SketchDir.
	DispatchHeader string
	// Libraries are passed to every compilation.
	Libraries      []string
	Project        string
	Version        string
	ProtocolDigest string
	// Parallel bounds concurrent compilations; <= 0 means one at a time.
	Parallel int
	// Ledger, when set, records every attempt.
	Ledger *Ledger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (m *Matrix) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Matrix) project() string {
	if m.Project != "" {
		return m.Project
	}
	return filepath.Base(m.SketchDir)
}

// Build compiles every target. No targets means DefaultBoards. The error is
// non-nil only when the build could not start; per-board failures are in
// the Report and never stop the other boards.
func (m *Matrix) Build(ctx context.Context, targets []BoardTarget) (*Report, error) {
	if len(targets) == 0 {
		targets = DefaultBoards()
	}
	headerPath := filepath.Join(m.SketchDir, m.DispatchHeader)
	if info, err := os.Stat(headerPath); err != nil {
		return nil, &PreconditionError{Path: headerPath, Err: err}
	} else if info.IsDir() {
		return nil, &PreconditionError{Path: headerPath, Err: errors.New("is a directory")}
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating firmware root: %w", err)
	}

	report := &Report{Results: make([]Result, len(targets))}
	var g errgroup.Group
	g.SetLimit(max(m.Parallel, 1))
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			report.Results[i] = m.buildOne(ctx, t)
			return nil
		})
	}
	g.Wait()

	for _, f := range report.Failures() {
		log.Errorf("%s", f)
	}
	return report, nil
}

func (m *Matrix) buildOne(ctx context.Context, t BoardTarget) Result {
	started := m.now()
	log.Infof("building %s (%s)", t.Name, t.FQBN)

	art, diag, err := m.compile(ctx, t, started)

	entry := Entry{
		Board:          t.Name,
		FQBN:           t.FQBN,
		ProtocolDigest: m.ProtocolDigest,
		StartedAt:      started,
		FinishedAt:     m.now(),
		Diagnostics:    diag,
	}
	res := Result{Board: t.Name}
	if err != nil {
		res.Failure = &BuildFailure{Board: t.Name, Diagnostics: string(diag), Err: err}
		entry.Status = StatusFailed
		entry.Error = err.Error()
	} else {
		res.Artifact = art
		entry.Status = StatusSucceeded
		entry.Artifact = art.Path
		entry.SHA256 = art.SHA256
		log.Infof("built %s: %s", t.Name, art.Path)
	}

	if m.Ledger != nil {
		if _, lerr := m.Ledger.Record(ctx, entry); lerr != nil {
			log.Warningf("%s", lerr)
		}
	}
	return res
}

// compile builds into a scratch directory under Root and moves the image
// into the board's directory. Nothing in the board directory changes unless
// an image was produced.
func (m *Matrix) compile(ctx context.Context, t BoardTarget, started time.Time) (*firmware.Artifact, []byte, error) {
	scratch, err := os.MkdirTemp(m.Root, ".build-"+t.Name+"-")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(scratch)

	diag, err := m.Toolchain.Compile(ctx, CompileRequest{
		Target:    t,
		SketchDir: m.SketchDir,
		OutputDir: scratch,
		Libraries: m.Libraries,
	})
	if err != nil {
		return nil, diag, err
	}

	image, err := findImage(scratch)
	if err != nil {
		return nil, diag, err
	}
	sum, err := firmware.FileSHA256(image)
	if err != nil {
		return nil, diag, err
	}
	info, err := os.Stat(image)
	if err != nil {
		return nil, diag, err
	}

	boardDir := filepath.Join(m.Root, t.Name)
	if err := os.MkdirAll(boardDir, 0o755); err != nil {
		return nil, diag, err
	}
	name := fmt.Sprintf("%s-%s%s", m.project(), started.UTC().Format("20060102T150405.000000000"), filepath.Ext(image))
	dest := filepath.Join(boardDir, name)

	meta := firmware.Metadata{
		Board:          t.Name,
		Project:        m.project(),
		Version:        m.Version,
		BuiltAt:        started,
		SHA256:         sum,
		ProtocolDigest: m.ProtocolDigest,
		FQBN:           t.FQBN,
		Size:           info.Size(),
	}
	if err := firmware.WriteMetadata(dest, meta); err != nil {
		return nil, diag, fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(image, dest); err != nil {
		os.Remove(firmware.MetadataPath(dest))
		return nil, diag, fmt.Errorf("installing image: %w", err)
	}

	return &firmware.Artifact{
		Board:          t.Name,
		Path:           dest,
		BuiltAt:        started,
		Size:           info.Size(),
		SHA256:         sum,
		ProtocolDigest: m.ProtocolDigest,
		Version:        m.Version,
	}, diag, nil
}

// findImage picks the compiled image: a .hex if any, else a .bin. Images
// that bundle the bootloader are ignored.
func findImage(dir string) (string, error) {
	var hexes, bins []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if strings.Contains(name, "with_bootloader") {
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".hex":
			hexes = append(hexes, path)
		case ".bin":
			bins = append(bins, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(hexes) > 0 {
		return hexes[0], nil
	}
	if len(bins) > 0 {
		return bins[0], nil
	}
	return "", errors.New("toolchain produced no .hex or .bin image")
}
