// Package codegen renders the two artifacts generated from a command table:
// the C++ dispatch header compiled into firmware and the Go proxy used by
// host programs. Both renderers are pure functions of the table and options.
package codegen

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/noderpc/rpc"
)

var log = commonlog.GetLogger("noderpc.codegen")

// DefaultScratchSize is the default NODERPC_SCRATCH_SIZE, in bytes.
const DefaultScratchSize = 128

// Options controls rendering.
type Options struct {
	// ProxyPackage is the package clause of the Go proxy. Default "proxy".
	ProxyPackage string

	// Includes are extra #include operands for the dispatch header, written
	// verbatim (`<Array.h>` or `"Array.h"`).
	Includes []string

	// ScratchSize is the default scratch buffer for wide array arguments.
	ScratchSize int
}

func (o Options) withDefaults() Options {
	if o.ProxyPackage == "" {
		o.ProxyPackage = "proxy"
	}
	if o.ScratchSize <= 0 {
		o.ScratchSize = DefaultScratchSize
	}
	return o
}

// Artifacts are both rendered outputs for one class.
type Artifacts struct {
	Class          string
	Digest         string
	DispatchHeader []byte
	Proxy          []byte
}

// CodeGenError reports a table that cannot be rendered. Method is empty when
// the problem concerns the whole class.
type CodeGenError struct {
	Class  string
	Method string
	Msg    string
}

func (e *CodeGenError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("codegen: %s::%s: %s", e.Class, e.Method, e.Msg)
	}
	return fmt.Sprintf("codegen: %s: %s", e.Class, e.Msg)
}

// Generate validates table and renders both artifacts. Either both are
// returned or neither.
func Generate(table *rpc.CommandTable, opts Options) (*Artifacts, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}
	hdr, err := RenderDispatchHeader(table, opts)
	if err != nil {
		return nil, err
	}
	proxy, err := RenderProxy(table, opts)
	if err != nil {
		return nil, err
	}
	log.Infof("generated %s: %d commands, digest %.12s", table.Class, table.Len(), table.Digest())
	return &Artifacts{
		Class:          table.Class,
		Digest:         table.Digest(),
		DispatchHeader: hdr,
		Proxy:          proxy,
	}, nil
}

// Validate checks that every command can be rendered on both sides.
func Validate(table *rpc.CommandTable) error {
	fail := func(method, format string, args ...any) error {
		return &CodeGenError{Class: table.Class, Method: method, Msg: fmt.Sprintf(format, args...)}
	}

	if table.Class == "" {
		return fail("", "class name is empty")
	}
	if table.Len() > rpc.MaxCommands {
		return fail("", "%d commands exceed the one-byte command id limit of %d", table.Len(), rpc.MaxCommands)
	}

	byName := make(map[string]rpc.MethodSignature)
	goNames := make(map[string]string)
	macros := make(map[string]string)
	for _, c := range table.Commands {
		m := c.Method
		if prev, ok := byName[m.Name]; ok {
			return fail(m.Name, "overloaded: %s and %s cannot share a command name; exclude one",
				prev.Canonical(), m.Canonical())
		}
		byName[m.Name] = m

		goName := toPascal(m.Name)
		if other, ok := goNames[goName]; ok {
			return fail(m.Name, "Go name %s collides with method %s", goName, other)
		}
		goNames[goName] = m.Name
		if reservedMethods[goName] {
			return fail(m.Name, "Go name %s is reserved by the proxy", goName)
		}

		macro := CommandMacro(m.Name)
		if other, ok := macros[macro]; ok {
			return fail(m.Name, "C++ constant %s collides with method %s", macro, other)
		}
		macros[macro] = m.Name

		if !m.Return.Valid() {
			return fail(m.Name, "invalid return type %s", m.Return)
		}
		for i, p := range m.Params {
			switch {
			case !p.Type.Valid():
				return fail(m.Name, "parameter %d has invalid type %s", i, p.Type)
			case p.Type == rpc.Void:
				return fail(m.Name, "parameter %d is void", i)
			}
		}
	}
	return nil
}
