package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/noderpc/board"
	"github.com/chazu/noderpc/codegen"
	"github.com/chazu/noderpc/firmware"
	"github.com/chazu/noderpc/header"
	"github.com/chazu/noderpc/manifest"
	"github.com/chazu/noderpc/rpc"
	"github.com/chazu/noderpc/upload"
)

// loadProject finds noderpc.toml at or above dir.
func loadProject(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		abs, _ := filepath.Abs(dir)
		return nil, fmt.Errorf("no %s found in %s or its parents", manifest.FileName, abs)
	}
	return m, nil
}

// catalogFromManifest overlays the manifest's [boards] on the built-in
// targets.
func catalogFromManifest(m *manifest.Manifest) board.Catalog {
	extra := make([]board.BoardTarget, 0, len(m.Boards))
	for name, b := range m.Boards {
		extra = append(extra, board.BoardTarget{Name: name, FQBN: b.FQBN, Flags: b.Flags})
	}
	return board.NewCatalog(extra...)
}

// profilesFromManifest overlays the manifest's [boards] upload settings on the
// built-in profiles. A board with no built-in profile starts from its name as
// the boards.txt id.
func profilesFromManifest(m *manifest.Manifest) (upload.Profiles, error) {
	ps := upload.DefaultProfiles()
	for name, b := range m.Boards {
		p, ok := ps[name]
		if !ok {
			p = upload.Profile{Board: name, BoardsTxtID: name}
		}
		if b.Protocol != "" {
			proto, err := upload.ParseProtocol(b.Protocol)
			if err != nil {
				return nil, fmt.Errorf("board %s: %w", name, err)
			}
			p.Protocol = proto
		}
		if b.Baud > 0 {
			p.Baud = b.Baud
		}
		if b.PageSize > 0 {
			p.PageSize = b.PageSize
		}
		if b.FlashSize > 0 {
			p.FlashSize = b.FlashSize
		}
		if len(b.USB) > 0 {
			p.USB = p.USB[:0:0]
			for _, s := range b.USB {
				id, err := upload.ParseUSBID(s)
				if err != nil {
					return nil, fmt.Errorf("board %s: %w", name, err)
				}
				p.USB = append(p.USB, id)
			}
		}
		ps[name] = p
	}
	return ps, nil
}

func codegenOptions(m *manifest.Manifest) codegen.Options {
	return codegen.Options{
		ProxyPackage: m.Output.ProxyPackage,
		Includes:     m.Output.Includes,
		ScratchSize:  m.Output.ScratchSize,
	}
}

func registryFor(m *manifest.Manifest) *firmware.Registry {
	if len(m.Firmware.Extensions) > 0 {
		return firmware.NewRegistry(m.FirmwareDir(), firmware.WithExtensions(m.Firmware.Extensions...))
	}
	return firmware.NewRegistry(m.FirmwareDir())
}

// dispatchHeaderName is the generated header's file name for class. The
// [output] override only applies to single-class projects.
func dispatchHeaderName(m *manifest.Manifest, class string) string {
	if m.Output.DispatchHeader != "" && len(m.RPC.Classes) == 1 {
		return m.Output.DispatchHeader
	}
	return codegen.DispatchHeaderName(class)
}

// introspectProject resolves dependencies, gathers every header they and the
// project expose, and builds the command tables of the configured classes.
func introspectProject(m *manifest.Manifest) ([]*rpc.CommandTable, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	libs, err := libraryDirs(m)
	if err != nil {
		return nil, err
	}

	roots := append(m.HeaderPaths(), libs...)
	paths, err := headerFiles(roots, generatedHeaders(m))
	if err != nil {
		return nil, err
	}
	log.Debugf("introspecting %d headers", len(paths))

	sources, err := header.LoadSources(paths)
	if err != nil {
		return nil, err
	}
	return header.Introspect(sources, m.RPC.Classes, header.Options{Exclude: m.RPC.Exclude})
}

// generatedHeaders lists the dispatch headers generate writes, which are
// never introspected.
func generatedHeaders(m *manifest.Manifest) map[string]bool {
	skip := make(map[string]bool)
	for _, class := range m.RPC.Classes {
		skip[filepath.Join(m.SketchDir(), dispatchHeaderName(m, class))] = true
	}
	return skip
}

// headerFiles expands directories to the headers beneath them and keeps
// files as given, dropping duplicates and anything in skip.
func headerFiles(roots []string, skip map[string]bool) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] || skip[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("header path: %w", err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		found, err := header.FindHeaders([]string{root})
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}

// libraryDirs lists the header directories outside the sketch: [rpc]
// include-dirs followed by those of resolved dependencies. The build passes
// them to the toolchain so it finds what generate introspected.
func libraryDirs(m *manifest.Manifest) ([]string, error) {
	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, err
	}

	var dirs []string
	seen := make(map[string]bool)
	for _, dir := range append(m.IncludeDirPaths(), manifest.IncludeDirs(deps)...) {
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
