package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/noderpc/codegen"
)

// handleGenerateCommand processes `noderpc generate`.
// Usage:
//
//	noderpc generate [--dir DIR] [--dry-run]
func (c *cli) handleGenerateCommand(args []string) error {
	flags, dir := newFlagSet("generate")
	dryRun := flags.Bool("dry-run", false, "introspect and render without writing files")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	tables, err := introspectProject(m)
	if err != nil {
		return err
	}

	// Render every class before writing anything, so a class that fails
	// leaves no artifacts from this run behind.
	opts := codegenOptions(m)
	rendered := make([]*codegen.Artifacts, len(tables))
	for i, table := range tables {
		a, err := codegen.Generate(table, opts)
		if err != nil {
			return err
		}
		rendered[i] = a
	}

	for i, a := range rendered {
		headerPath := filepath.Join(m.SketchDir(), dispatchHeaderName(m, a.Class))
		proxyPath := filepath.Join(m.ProxyDirPath(), codegen.ProxyFileName(a.Class))
		if !*dryRun {
			if err := codegen.WriteArtifacts(a, headerPath, proxyPath); err != nil {
				return err
			}
		}
		fmt.Fprintf(c.stdout, "%s: %d commands, digest %.12s\n", a.Class, tables[i].Len(), a.Digest)
		fmt.Fprintf(c.stdout, "  %s\n  %s\n", rel(m.Dir, headerPath), rel(m.Dir, proxyPath))
	}
	return nil
}

// rel shortens path for display when it lies under base.
func rel(base, path string) string {
	if r, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}
