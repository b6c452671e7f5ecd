package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/chazu/noderpc/rpc"
)

//go:embed templates/dispatch.h.tmpl
var templateFS embed.FS

var dispatchTemplate = template.Must(template.ParseFS(templateFS, "templates/dispatch.h.tmpl"))

type dispatchView struct {
	Class       string
	Digest      string
	Guard       string
	Namespace   string
	Includes    []string
	ScratchSize int
	UsesScratch bool
	Commands    []commandView
}

type commandView struct {
	ID         int
	Const      string
	Signature  string
	Decode     []string
	Call       string
	ReturnType string
	Encode     []string
}

// RenderDispatchHeader renders the embedded dispatch header for table.
func RenderDispatchHeader(table *rpc.CommandTable, opts Options) ([]byte, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	view := dispatchView{
		Class:       table.Class,
		Digest:      table.Digest(),
		Guard:       "NODERPC_" + toMacro(table.Class) + "_RPC_H",
		Namespace:   toSnake(table.Class),
		Includes:    opts.Includes,
		ScratchSize: opts.ScratchSize,
	}
	for _, c := range table.Commands {
		cv := renderCommand(c)
		for _, p := range c.Method.Params {
			if p.Type.IsArray() && p.Type.Width() > 1 {
				view.UsesScratch = true
			}
		}
		view.Commands = append(view.Commands, cv)
	}

	var buf bytes.Buffer
	if err := dispatchTemplate.Execute(&buf, view); err != nil {
		return nil, &CodeGenError{Class: table.Class, Msg: fmt.Sprintf("rendering dispatch header: %v", err)}
	}
	return buf.Bytes(), nil
}

func renderCommand(c rpc.Command) commandView {
	m := c.Method
	cv := commandView{
		ID:        c.ID,
		Const:     CommandMacro(m.Name),
		Signature: m.Canonical(),
	}

	args := make([]string, len(m.Params))
	for i, p := range m.Params {
		v := fmt.Sprintf("a%d", i)
		args[i] = v
		cv.Decode = append(cv.Decode, decodeLines(v, p.Type)...)
	}
	cv.Call = fmt.Sprintf("%s(%s)", m.Name, strings.Join(args, ", "))

	if m.Return != rpc.Void {
		cv.ReturnType = m.Return.CName()
		cv.Encode = encodeLines("result", m.Return)
	}
	return cv
}

// unsignedOf returns the unsigned C type of the same width.
func unsignedOf(t rpc.ParamType) string {
	switch t.Width() {
	case 1:
		return "uint8_t"
	case 2:
		return "uint16_t"
	case 4:
		return "uint32_t"
	}
	return "uint64_t"
}

// readExpr is a C++ expression reading one scalar of type t from `in`.
func readExpr(t rpc.ParamType) string {
	switch t {
	case rpc.Bool:
		return "in.read_le(1) != 0"
	case rpc.Float32:
		return "in.read_float()"
	}
	u := unsignedOf(t)
	expr := fmt.Sprintf("(%s)in.read_le(%d)", u, t.Width())
	if u != t.CName() {
		expr = fmt.Sprintf("(%s)%s", t.CName(), expr)
	}
	return expr
}

func decodeLines(v string, t rpc.ParamType) []string {
	if !t.IsArray() {
		return []string{fmt.Sprintf("%s %s = %s;", t.CName(), v, readExpr(t))}
	}

	elem := t.Elem()
	lines := []string{
		fmt.Sprintf("%s %s;", t.CName(), v),
		fmt.Sprintf("%s.length = (uint16_t)in.read_le(2);", v),
	}
	if elem.Width() == 1 {
		// Byte arrays point straight into the request.
		return append(lines, fmt.Sprintf("%s.data = (%s *)in.take(%s.length);", v, elem.CName(), v))
	}
	return append(lines,
		fmt.Sprintf("%s.data = (%s *)scratch.take((uint32_t)%s.length * %d);", v, elem.CName(), v, elem.Width()),
		fmt.Sprintf("if (%s.data == 0) {", v),
		"  status = STATUS_MALFORMED_REQUEST;",
		"  break;",
		"}",
		fmt.Sprintf("for (uint16_t i = 0; i < %s.length && in.ok; i++) {", v),
		fmt.Sprintf("  %s.data[i] = %s;", v, readExpr(elem)),
		"}",
	)
}

func writeStmt(expr string, t rpc.ParamType) string {
	switch t {
	case rpc.Bool:
		return fmt.Sprintf("out.write_le(%s ? 1 : 0, 1);", expr)
	case rpc.Float32:
		return fmt.Sprintf("out.write_float(%s);", expr)
	}
	return fmt.Sprintf("out.write_le((uint64_t)%s, %d);", expr, t.Width())
}

func encodeLines(v string, t rpc.ParamType) []string {
	if !t.IsArray() {
		return []string{writeStmt(v, t)}
	}
	return []string{
		fmt.Sprintf("if ((uint32_t)%s.length > 0xFFFFu) {", v),
		"  out.ok = false;",
		"}",
		fmt.Sprintf("out.write_le(%s.length, 2);", v),
		fmt.Sprintf("for (uint32_t i = 0; i < (uint32_t)%s.length && out.ok; i++) {", v),
		"  " + writeStmt(v+".data[i]", t.Elem()),
		"}",
	}
}
