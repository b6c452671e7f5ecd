// Package board compiles a sketch for a set of boards and files the images
// into the firmware registry.
package board

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("noderpc.board")

// BoardTarget names a board and how to compile for it.
type BoardTarget struct {
	Name  string
	FQBN  string
	Flags []string
}

// DefaultBoards returns the boards built when none are requested.
func DefaultBoards() []BoardTarget {
	return []BoardTarget{
		{Name: "uno", FQBN: "arduino:avr:uno"},
		{Name: "mega2560", FQBN: "arduino:avr:mega:cpu=atmega2560"},
	}
}

// Catalog maps board names to targets.
type Catalog map[string]BoardTarget

// NewCatalog returns the default boards overlaid with extra. An extra entry
// with an empty FQBN keeps the default FQBN of the same name.
func NewCatalog(extra ...BoardTarget) Catalog {
	c := make(Catalog)
	for _, t := range DefaultBoards() {
		c[t.Name] = t
	}
	for _, t := range extra {
		if base, ok := c[t.Name]; ok && t.FQBN == "" {
			t.FQBN = base.FQBN
		}
		c[t.Name] = t
	}
	return c
}

// Resolve maps names to targets in the given order. No names yields
// DefaultBoards, or the catalog's boards listed in defaults when non-empty.
func (c Catalog) Resolve(names []string, defaults ...string) ([]BoardTarget, error) {
	if len(names) == 0 {
		if len(defaults) == 0 {
			return DefaultBoards(), nil
		}
		names = defaults
	}

	targets := make([]BoardTarget, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		t, ok := c[name]
		if !ok || t.FQBN == "" {
			return nil, fmt.Errorf("unknown board %q (known: %s)", name, strings.Join(c.Names(), ", "))
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Names returns the catalog's board names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
