package codegen

import (
	"bytes"
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/noderpc/rpc"
)

const rpcPkg = "github.com/chazu/noderpc/rpc"

// RenderProxy renders the Go proxy for table. The result is gofmt'ed and
// parsed before it is returned.
func RenderProxy(table *rpc.CommandTable, opts Options) ([]byte, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	g := &proxyGenerator{table: table, typeName: ProxyType(table.Class)}
	f := jen.NewFile(opts.ProxyPackage)
	f.HeaderComment(fmt.Sprintf("Code generated by noderpc from class %s. DO NOT EDIT.", table.Class))
	f.ImportName(rpcPkg, "rpc")

	g.generateConstants(f)
	g.generateType(f)
	for _, c := range table.Commands {
		g.generateMethod(f, c)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, &CodeGenError{Class: table.Class, Msg: fmt.Sprintf("rendering proxy: %v", err)}
	}

	filename := ProxyFileName(table.Class)
	if errs := NewCodeValidator(filename).Validate(buf.String()); len(errs) > 0 {
		return nil, &CodeGenError{
			Class:  table.Class,
			Method: errs[0].Function,
			Msg:    "generated proxy does not parse:\n" + FormatValidationErrors(errs, filename),
		}
	}
	return buf.Bytes(), nil
}

type proxyGenerator struct {
	table    *rpc.CommandTable
	typeName string
}

func (g *proxyGenerator) generateConstants(f *jen.File) {
	f.Comment("ProtocolDigest identifies the command table this proxy speaks. Firmware")
	f.Comment("built from the same table embeds the same value.")
	f.Const().Id("ProtocolDigest").Op("=").Lit(g.table.Digest())
	f.Line()

	f.Comment("Command ids, in table order.")
	f.Const().DefsFunc(func(defs *jen.Group) {
		for _, c := range g.table.Commands {
			defs.Id(CommandConst(c.Method.Name)).Uint8().Op("=").Lit(c.ID).
				Comment(c.Method.Canonical())
		}
	})
	f.Line()
}

func (g *proxyGenerator) generateType(f *jen.File) {
	f.Commentf("%s calls %s methods on a remote node through an rpc.Caller.", g.typeName, g.table.Class)
	f.Type().Id(g.typeName).Struct(
		jen.Id("caller").Qual(rpcPkg, "Caller"),
	)
	f.Line()

	f.Commentf("New%s returns a proxy that sends every call through caller.", g.typeName)
	f.Func().Id("New"+g.typeName).Params(jen.Id("caller").Qual(rpcPkg, "Caller")).Op("*").Id(g.typeName).Block(
		jen.Return(jen.Op("&").Id(g.typeName).Values(jen.Dict{
			jen.Id("caller"): jen.Id("caller"),
		})),
	)
	f.Line()

	f.Comment("Caller returns the underlying caller.")
	f.Func().Params(jen.Id("p").Op("*").Id(g.typeName)).Id("Caller").Params().Qual(rpcPkg, "Caller").Block(
		jen.Return(jen.Id("p").Dot("caller")),
	)
	f.Line()
}

func (g *proxyGenerator) generateMethod(f *jen.File, c rpc.Command) {
	m := c.Method
	goName := toPascal(m.Name)
	cmd := CommandConst(m.Name)
	label := fmt.Sprintf("%s.%s: %%w", g.table.Class, m.Name)

	paramNames := make([]string, len(m.Params))
	for i, p := range m.Params {
		paramNames[i] = p.Name
	}
	goParams := goParamNames(paramNames)

	params := []jen.Code{jen.Id("ctx").Qual("context", "Context")}
	for i, p := range m.Params {
		params = append(params, jen.Id(goParams[i]).Add(goType(p.Type)))
	}

	var results []jen.Code
	var fail func(err jen.Code) jen.Code
	if m.Return == rpc.Void {
		results = []jen.Code{jen.Error()}
		fail = func(err jen.Code) jen.Code { return jen.Return(err) }
	} else {
		results = []jen.Code{goType(m.Return), jen.Error()}
		fail = func(err jen.Code) jen.Code { return jen.Return(zeroValue(m.Return), err) }
	}
	wrap := func(err jen.Code) jen.Code {
		return jen.Qual("fmt", "Errorf").Call(jen.Lit(label), err)
	}

	var body []jen.Code
	argsExpr := jen.Nil()
	if len(m.Params) > 0 {
		body = append(body, jen.Id("enc").Op(":=").Qual(rpcPkg, "NewEncoder").Call())
		for i, p := range m.Params {
			body = append(body, jen.Id("enc").Dot("Put"+p.Type.CodecName()).Call(jen.Id(goParams[i])))
		}
		body = append(body,
			jen.List(jen.Id("args"), jen.Err()).Op(":=").Id("enc").Dot("Payload").Call(),
			jen.If(jen.Err().Op("!=").Nil()).Block(fail(wrap(jen.Err()))),
		)
		argsExpr = jen.Id("args")
	}

	body = append(body,
		jen.List(jen.Id("reply"), jen.Err()).Op(":=").Id("p").Dot("caller").Dot("Call").Call(
			jen.Id("ctx"), jen.Id(cmd), argsExpr,
		),
		jen.If(jen.Err().Op("!=").Nil()).Block(fail(wrap(jen.Err()))),
	)

	decodeFailed := wrap(jen.Qual(rpcPkg, "NewDecodeError").Call(jen.Id(cmd), jen.Err()))
	if m.Return == rpc.Void {
		body = append(body,
			jen.If(
				jen.Err().Op(":=").Qual(rpcPkg, "NewDecoder").Call(jen.Id("reply")).Dot("Finish").Call(),
				jen.Err().Op("!=").Nil(),
			).Block(fail(decodeFailed)),
			jen.Return(jen.Nil()),
		)
	} else {
		body = append(body,
			jen.Id("dec").Op(":=").Qual(rpcPkg, "NewDecoder").Call(jen.Id("reply")),
			jen.Id("result").Op(":=").Id("dec").Dot(m.Return.CodecName()).Call(),
			jen.If(
				jen.Err().Op(":=").Id("dec").Dot("Finish").Call(),
				jen.Err().Op("!=").Nil(),
			).Block(fail(decodeFailed)),
			jen.Return(jen.Id("result"), jen.Nil()),
		)
	}

	f.Commentf("%s calls %s::%s (command %d).", goName, m.DeclaredIn, m.Name, c.ID)
	f.Func().Params(jen.Id("p").Op("*").Id(g.typeName)).Id(goName).
		Params(params...).
		Params(results...).
		Block(body...)
	f.Line()
}

// goType returns the Go type of t as a jennifer statement.
func goType(t rpc.ParamType) *jen.Statement {
	switch t {
	case rpc.Bool:
		return jen.Bool()
	case rpc.Uint8:
		return jen.Uint8()
	case rpc.Int8:
		return jen.Int8()
	case rpc.Uint16:
		return jen.Uint16()
	case rpc.Int16:
		return jen.Int16()
	case rpc.Uint32:
		return jen.Uint32()
	case rpc.Int32:
		return jen.Int32()
	case rpc.Uint64:
		return jen.Uint64()
	case rpc.Int64:
		return jen.Int64()
	case rpc.Float32:
		return jen.Float32()
	case rpc.Uint8Array:
		return jen.Index().Byte()
	case rpc.Int8Array:
		return jen.Index().Int8()
	case rpc.Uint16Array:
		return jen.Index().Uint16()
	case rpc.Int16Array:
		return jen.Index().Int16()
	case rpc.Uint32Array:
		return jen.Index().Uint32()
	case rpc.Int32Array:
		return jen.Index().Int32()
	case rpc.FloatArray:
		return jen.Index().Float32()
	}
	return jen.Null()
}

func zeroValue(t rpc.ParamType) jen.Code {
	switch {
	case t == rpc.Bool:
		return jen.False()
	case t.IsArray():
		return jen.Nil()
	}
	return jen.Lit(0)
}
