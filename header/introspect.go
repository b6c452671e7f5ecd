// Package header reads the public interface of embedded classes out of C++
// headers and turns each into an rpc.CommandTable.
package header

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/noderpc/rpc"
)

var log = commonlog.GetLogger("noderpc.header")

// Source is one header's text and the path it is reported under.
type Source struct {
	Path string
	Text string
}

// Options controls which methods are exposed.
type Options struct {
	// Exclude lists method names never exposed, in addition to names
	// beginning with an underscore.
	Exclude []string
}

// LoadSources reads the named header files.
func LoadSources(paths []string) ([]Source, error) {
	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		sources = append(sources, Source{Path: path, Text: string(data)})
	}
	return sources, nil
}

// FindHeaders lists *.h and *.hpp files under each directory, sorted within
// each directory so results are stable.
func FindHeaders(dirs []string) ([]string, error) {
	var paths []string
	for _, dir := range dirs {
		var found []string
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			switch filepath.Ext(path) {
			case ".h", ".hpp", ".hh":
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// Introspect parses every source and builds one CommandTable per requested
// class, in the order requested. Bases are resolved across all sources.
func Introspect(sources []Source, classes []string, opts Options) ([]*rpc.CommandTable, error) {
	idx, err := buildIndex(sources)
	if err != nil {
		return nil, err
	}

	tables := make([]*rpc.CommandTable, 0, len(classes))
	for _, class := range classes {
		m := newMerger(idx, class, opts)
		if err := m.visit(class, nil); err != nil {
			return nil, err
		}
		log.Debugf("class %s: %d commands", class, len(m.methods))
		tables = append(tables, rpc.NewCommandTable(class, m.methods))
	}
	return tables, nil
}

// ---------------------------------------------------------------------------
// Class index
// ---------------------------------------------------------------------------

type index struct {
	classes map[string][]*classDecl
	paths   int
}

func buildIndex(sources []Source) (*index, error) {
	idx := &index{classes: make(map[string][]*classDecl)}
	seen := make(map[string]bool)
	for _, src := range sources {
		if seen[src.Path] {
			continue
		}
		seen[src.Path] = true
		idx.paths++

		decls, err := NewParser(src.Path, src.Text).parse()
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			idx.classes[d.Name] = append(idx.classes[d.Name], d)
		}
	}
	return idx, nil
}

// lookup finds the single definition of name. from is the class naming it as
// a base, or nil for a requested class.
func (idx *index) lookup(root, name string, from *classDecl) (*classDecl, error) {
	decls := idx.classes[name]
	switch {
	case len(decls) == 1:
		return decls[0], nil
	case len(decls) > 1:
		return nil, &ParseError{
			Class: root,
			Path:  decls[1].Path,
			Line:  decls[1].Line,
			Msg:   fmt.Sprintf("class %s is also defined at %s:%d", name, decls[0].Path, decls[0].Line),
		}
	case from != nil:
		return nil, &ParseError{
			Class: root,
			Path:  from.Path,
			Line:  from.Line,
			Msg:   fmt.Sprintf("base class %s of %s not found in %d headers", name, from.Name, idx.paths),
		}
	}
	return nil, &ParseError{Class: root, Msg: fmt.Sprintf("not found in %d headers", idx.paths)}
}

// ---------------------------------------------------------------------------
// Base-first merge
// ---------------------------------------------------------------------------

type merger struct {
	idx      *index
	root     string
	exclude  map[string]bool
	visiting map[string]bool
	done     map[string]bool
	methods  []rpc.MethodSignature
}

func newMerger(idx *index, root string, opts Options) *merger {
	m := &merger{
		idx:      idx,
		root:     root,
		exclude:  make(map[string]bool, len(opts.Exclude)),
		visiting: make(map[string]bool),
		done:     make(map[string]bool),
	}
	for _, name := range opts.Exclude {
		m.exclude[name] = true
	}
	return m
}

// visit merges name's bases, in declaration order, then name's own methods.
// A base reached along two paths contributes once.
func (m *merger) visit(name string, from *classDecl) error {
	decl, err := m.idx.lookup(m.root, name, from)
	if err != nil {
		return err
	}
	if m.done[decl.Name] {
		return nil
	}
	if m.visiting[decl.Name] {
		return &ParseError{Class: m.root, Path: decl.Path, Line: decl.Line,
			Msg: fmt.Sprintf("class %s inherits from itself", decl.Name)}
	}
	m.visiting[decl.Name] = true

	for _, base := range decl.Bases {
		if err := m.visit(base, decl); err != nil {
			return err
		}
	}

	for _, md := range decl.Methods {
		if md.Static || strings.HasPrefix(md.Name, "_") || m.exclude[md.Name] {
			continue
		}
		sig, err := resolve(decl, md)
		if err != nil {
			return err
		}
		m.add(sig)
	}

	m.visiting[decl.Name] = false
	m.done[decl.Name] = true
	return nil
}

// add appends sig, or overrides an earlier entry with the same name and
// parameter types in place.
func (m *merger) add(sig rpc.MethodSignature) {
	for i, prev := range m.methods {
		if prev.Name == sig.Name && prev.SameParams(sig) {
			m.methods[i] = sig
			return
		}
	}
	m.methods = append(m.methods, sig)
}

func resolve(decl *classDecl, md methodDecl) (rpc.MethodSignature, error) {
	unsupported := func(spelling string) error {
		return &UnsupportedTypeError{Class: decl.Name, Method: md.Name, Type: spelling, Path: decl.Path, Line: md.Line}
	}

	sig := rpc.MethodSignature{Name: md.Name, DeclaredIn: decl.Name}
	ret, ok := rpc.LookupCType(md.Return)
	if !ok {
		return sig, unsupported(md.Return)
	}
	sig.Return = ret

	for _, pd := range md.Params {
		t, ok := rpc.LookupCType(pd.Type)
		if !ok {
			return sig, unsupported(pd.Type)
		}
		sig.Params = append(sig.Params, rpc.Param{Name: pd.Name, Type: t})
	}
	return sig, nil
}
