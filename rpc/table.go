package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// MaxCommands is the number of distinct command ids a one-byte CommandId
// can address.
const MaxCommands = 256

// Param is one declared parameter of an exposed method.
type Param struct {
	Name string
	Type ParamType
}

// MethodSignature is an exposed method after base-first merging.
// DeclaredIn names the class whose declaration supplied the signature, which
// differs from the table's class for inherited methods.
type MethodSignature struct {
	Name       string
	Params     []Param
	Return     ParamType
	DeclaredIn string
}

// SameParams reports whether two signatures take identical parameter types in
// the same order. Parameter names are not part of the identity.
func (m MethodSignature) SameParams(other MethodSignature) bool {
	if len(m.Params) != len(other.Params) {
		return false
	}
	for i := range m.Params {
		if m.Params[i].Type != other.Params[i].Type {
			return false
		}
	}
	return true
}

// Canonical returns `name(type,type)->ret` using C++ spellings.
func (m MethodSignature) Canonical() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Type.CName())
	}
	sb.WriteString(")->")
	sb.WriteString(m.Return.CName())
	return sb.String()
}

// Command binds a method to its command id. IDs are dense from zero in
// merged declaration order.
type Command struct {
	ID     int
	Method MethodSignature
}

// CommandTable is the single source both generated artifacts are rendered
// from. It is immutable once built.
type CommandTable struct {
	Class    string
	Commands []Command
}

// NewCommandTable assigns ids to methods in the given order.
func NewCommandTable(class string, methods []MethodSignature) *CommandTable {
	t := &CommandTable{Class: class, Commands: make([]Command, len(methods))}
	for i, m := range methods {
		t.Commands[i] = Command{ID: i, Method: m}
	}
	return t
}

// Len returns the number of commands.
func (t *CommandTable) Len() int { return len(t.Commands) }

// Lookup returns the command with the given wire id.
func (t *CommandTable) Lookup(id uint8) (Command, bool) {
	if int(id) >= len(t.Commands) {
		return Command{}, false
	}
	return t.Commands[id], true
}

// ByName returns the first command exposing the named method.
func (t *CommandTable) ByName(name string) (Command, bool) {
	for _, c := range t.Commands {
		if c.Method.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Canonical renders the table as the text its digest is computed over.
func (t *CommandTable) Canonical() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "noderpc/1 class=%s\n", t.Class)
	for _, c := range t.Commands {
		fmt.Fprintf(&sb, "%d %s\n", c.ID, c.Method.Canonical())
	}
	return sb.String()
}

// Digest is the hex BLAKE3-256 of Canonical. Two artifacts with equal digests
// speak the same protocol.
func (t *CommandTable) Digest() string {
	sum := blake3.Sum256([]byte(t.Canonical()))
	return hex.EncodeToString(sum[:])
}
