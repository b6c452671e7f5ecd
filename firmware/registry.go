// Package firmware catalogs built firmware images.
//
// Layout contract, shared with the build matrix:
//
//	<root>/<board>/<file><ext>        the image (ext is .hex or .bin by default)
//	<root>/<board>/<file><ext>.meta   optional CBOR Metadata sidecar
//
// Entries whose names begin with "." are ignored, which hides in-progress
// builds and the build ledger.
package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("noderpc.firmware")

// DefaultExtensions are the image types the registry recognises.
var DefaultExtensions = []string{".hex", ".bin"}

// Artifact is one image in the registry.
type Artifact struct {
	Board          string
	Path           string
	BuiltAt        time.Time
	Size           int64
	SHA256         string
	ProtocolDigest string
	Version        string
}

// NoFirmwareError reports a board with no artifact under the registry root.
type NoFirmwareError struct {
	Board string
	Root  string
}

func (e *NoFirmwareError) Error() string {
	return fmt.Sprintf("no firmware for board %q under %s", e.Board, e.Root)
}

// Registry reads the layout under a root directory. It holds no cache: each
// call rescans, so artifacts built earlier in the same process are seen.
type Registry struct {
	root string
	exts []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithExtensions replaces the recognised image extensions.
func WithExtensions(exts ...string) Option {
	return func(r *Registry) {
		r.exts = nil
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			r.exts = append(r.exts, strings.ToLower(ext))
		}
	}
}

// NewRegistry returns a registry rooted at root.
func NewRegistry(root string, opts ...Option) *Registry {
	r := &Registry{root: root, exts: DefaultExtensions}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the registry root.
func (r *Registry) Root() string { return r.root }

// BoardDir returns the directory holding a board's artifacts.
func (r *Registry) BoardDir(board string) string {
	return filepath.Join(r.root, board)
}

// List returns every board with at least one artifact.
func (r *Registry) List() (map[string][]Artifact, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]Artifact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing firmware root: %w", err)
	}

	out := make(map[string][]Artifact)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		arts, err := r.Artifacts(e.Name())
		if err != nil {
			return nil, err
		}
		if len(arts) > 0 {
			out[e.Name()] = arts
		}
	}
	return out, nil
}

// Boards returns the names of boards with artifacts, sorted.
func (r *Registry) Boards() ([]string, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	boards := make([]string, 0, len(all))
	for b := range all {
		boards = append(boards, b)
	}
	sort.Strings(boards)
	return boards, nil
}

// Artifacts returns a board's artifacts, newest first. Ties on build time are
// broken by path, ascending. A board with no directory has no artifacts.
func (r *Registry) Artifacts(board string) ([]Artifact, error) {
	dir := r.BoardDir(board)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing firmware for %s: %w", board, err)
	}

	var arts []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !r.recognised(name) {
			continue
		}
		a, err := r.load(board, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		arts = append(arts, a)
	}

	sort.SliceStable(arts, func(i, j int) bool {
		if !arts[i].BuiltAt.Equal(arts[j].BuiltAt) {
			return arts[i].BuiltAt.After(arts[j].BuiltAt)
		}
		return arts[i].Path < arts[j].Path
	})
	return arts, nil
}

// Resolve returns the artifact to flash for board: the first of Artifacts.
func (r *Registry) Resolve(board string) (Artifact, error) {
	arts, err := r.Artifacts(board)
	if err != nil {
		return Artifact{}, err
	}
	if len(arts) == 0 {
		return Artifact{}, &NoFirmwareError{Board: board, Root: r.root}
	}
	log.Debugf("resolved %s to %s", board, arts[0].Path)
	return arts[0], nil
}

func (r *Registry) recognised(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range r.exts {
		if ext == want {
			return true
		}
	}
	return false
}

// load builds an Artifact from the file and its sidecar, if any. Without a
// sidecar the build time is the file's modification time.
func (r *Registry) load(board, path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{Board: board, Path: path, BuiltAt: info.ModTime(), Size: info.Size()}

	meta, ok, err := ReadMetadata(path)
	if err != nil {
		log.Warningf("ignoring unreadable metadata for %s: %v", path, err)
		ok = false
	}
	if ok {
		if !meta.BuiltAt.IsZero() {
			a.BuiltAt = meta.BuiltAt
		}
		a.SHA256 = meta.SHA256
		a.ProtocolDigest = meta.ProtocolDigest
		a.Version = meta.Version
	}
	if a.SHA256 == "" {
		if a.SHA256, err = FileSHA256(path); err != nil {
			return Artifact{}, err
		}
	}
	return a, nil
}

// FileSHA256 returns the hex SHA-256 of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
