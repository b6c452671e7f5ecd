// Package manifest handles noderpc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest's name in a project directory.
const FileName = "noderpc.toml"

// Manifest represents a noderpc.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	RPC          RPC                   `toml:"rpc"`
	Output       Output                `toml:"output"`
	Firmware     Firmware              `toml:"firmware"`
	Build        Build                 `toml:"build"`
	Boards       map[string]Board      `toml:"boards"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the noderpc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// RPC selects the classes to expose and where their headers live.
type RPC struct {
	Headers     []string `toml:"headers"`
	Classes     []string `toml:"classes"`
	IncludeDirs []string `toml:"include-dirs"`
	Exclude     []string `toml:"exclude"`
}

// Output configures generated files.
type Output struct {
	Sketch string `toml:"sketch"`
	// DispatchHeader overrides the generated header's file name.
	DispatchHeader string   `toml:"dispatch-header"`
	ProxyDir       string   `toml:"proxy-dir"`
	ProxyPackage   string   `toml:"proxy-package"`
	Includes       []string `toml:"includes"`
	ScratchSize    int      `toml:"scratch-size"`
}

// Firmware configures the firmware registry.
type Firmware struct {
	Dir        string   `toml:"dir"`
	Extensions []string `toml:"extensions"`
}

// Build configures the board build matrix.
type Build struct {
	Toolchain     string   `toml:"toolchain"`
	ToolchainHome string   `toml:"toolchain-home"`
	Parallel      int      `toml:"parallel"`
	DefaultBoards []string `toml:"default-boards"`
}

// Board adds or overrides a board. Zero fields keep the built-in values.
type Board struct {
	FQBN      string   `toml:"fqbn"`
	Flags     []string `toml:"flags"`
	Protocol  string   `toml:"protocol"`
	Baud      int      `toml:"baud"`
	PageSize  int      `toml:"page-size"`
	FlashSize int      `toml:"flash-size"`
	USB       []string `toml:"usb"`
}

// Dependency is a header library the introspector searches for base classes.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
	// Include lists header directories inside the dependency. Defaults to
	// src/ when present, else the dependency root.
	Include []string `toml:"include"`
}

// Load parses a noderpc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if m.Output.Sketch == "" {
		m.Output.Sketch = "."
	}
	if len(m.RPC.Headers) == 0 {
		m.RPC.Headers = []string{m.Output.Sketch}
	}
	if m.Output.ProxyDir == "" {
		m.Output.ProxyDir = "proxy"
	}
	if m.Output.ProxyPackage == "" {
		m.Output.ProxyPackage = filepath.Base(m.Output.ProxyDir)
	}
	if m.Firmware.Dir == "" {
		m.Firmware.Dir = "firmware"
	}
	if m.Build.Toolchain == "" {
		m.Build.Toolchain = "arduino-cli"
	}
	if m.Build.Parallel <= 0 {
		m.Build.Parallel = 2
	}
}

// Validate reports configuration that cannot drive code generation.
func (m *Manifest) Validate() error {
	if len(m.RPC.Classes) == 0 {
		return fmt.Errorf("%s: [rpc] classes is empty", filepath.Join(m.Dir, FileName))
	}
	for name, b := range m.Boards {
		if b.Baud < 0 || b.PageSize < 0 || b.FlashSize < 0 {
			return fmt.Errorf("%s: [boards.%s] sizes and baud must not be negative", filepath.Join(m.Dir, FileName), name)
		}
	}
	for name, dep := range m.Dependencies {
		if dep.Git == "" && dep.Path == "" {
			return fmt.Errorf("%s: dependency %q has no git or path specified", filepath.Join(m.Dir, FileName), name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a noderpc.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// HeaderPaths returns absolute paths for the configured header files and
// directories.
func (m *Manifest) HeaderPaths() []string {
	var paths []string
	for _, h := range m.RPC.Headers {
		paths = append(paths, m.abs(h))
	}
	return paths
}

// IncludeDirPaths returns absolute paths for the extra include directories.
func (m *Manifest) IncludeDirPaths() []string {
	var paths []string
	for _, d := range m.RPC.IncludeDirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// SketchDir returns the absolute sketch directory.
func (m *Manifest) SketchDir() string {
	return m.abs(m.Output.Sketch)
}

// ProxyDirPath returns the absolute directory for the generated Go proxy.
func (m *Manifest) ProxyDirPath() string {
	return m.abs(m.Output.ProxyDir)
}

// FirmwareDir returns the absolute firmware registry root.
func (m *Manifest) FirmwareDir() string {
	return m.abs(m.Firmware.Dir)
}

// ToolchainHome returns the absolute toolchain home, or "" when unset.
func (m *Manifest) ToolchainHome() string {
	if m.Build.ToolchainHome == "" {
		return ""
	}
	return m.abs(m.Build.ToolchainHome)
}

// DepsDir returns the path to the .noderpc/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".noderpc", "deps")
}

// LockFilePath returns the path to .noderpc/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".noderpc", "lock.toml")
}
