package header

import (
	"fmt"
	"strings"
)

// classDecl is a class or struct definition as written, before merging.
type classDecl struct {
	Name    string
	Path    string
	Line    int
	Bases   []string
	Methods []methodDecl
}

type methodDecl struct {
	Name   string
	Return string
	Params []paramDecl
	Static bool
	Line   int
}

type paramDecl struct {
	Name string
	Type string
}

type access int

const (
	accessPrivate access = iota
	accessProtected
	accessPublic
)

// Parser reads class definitions out of one header. Anything that is not a
// class body (functions, variables, enums, templates) is skipped by balanced
// bracket counting.
type Parser struct {
	toks    []Token
	pos     int
	path    string
	classes []*classDecl
}

// NewParser tokenizes text.
func NewParser(path, text string) *Parser {
	return &Parser{toks: NewLexer(text).Tokens(), path: path}
}

func (p *Parser) cur() Token { return p.toks[p.pos] }

func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) next() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *Parser) atEOF() bool { return p.cur().Type == TokenEOF }

func (p *Parser) errorf(line int, class, format string, args ...any) *ParseError {
	return &ParseError{Class: class, Path: p.path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// parse reads every class definition at namespace scope.
func (p *Parser) parse() ([]*classDecl, error) {
	if err := p.parseScope(false); err != nil {
		return nil, err
	}
	return p.classes, nil
}

func (p *Parser) parseScope(braced bool) error {
	for !p.atEOF() {
		tok := p.cur()
		switch {
		case tok.Is("}"):
			p.next()
			if braced {
				return nil
			}
		case tok.Is(";"):
			p.next()
		case tok.Is("namespace"):
			p.next()
			for !p.atEOF() && !p.cur().Is("{") && !p.cur().Is(";") {
				p.next()
			}
			if p.cur().Is("{") {
				p.next()
				if err := p.parseScope(true); err != nil {
					return err
				}
			} else {
				p.next()
			}
		case tok.Is("extern") && p.peek(1).Type == TokenLiteral && p.peek(2).Is("{"):
			p.next()
			p.next()
			p.next()
			if err := p.parseScope(true); err != nil {
				return err
			}
		case tok.Is("template"):
			// Class templates are indexed so they can serve as bases;
			// function templates are skipped.
			p.next()
			p.skipTemplateParams()
			if !p.cur().Is("class") && !p.cur().Is("struct") {
				p.skipDeclaration()
			}
		case tok.Is("class") || tok.Is("struct"):
			if err := p.parseClassOrSkip(); err != nil {
				return err
			}
		default:
			p.skipDeclaration()
		}
	}
	return nil
}

func (p *Parser) parseClassOrSkip() error {
	start := p.pos
	isStruct := p.cur().Is("struct")
	p.next()
	nameTok := p.cur()
	if nameTok.Type != TokenIdentifier {
		p.pos = start
		p.skipDeclaration()
		return nil
	}
	p.next()
	if p.cur().Is("final") {
		p.next()
	}
	switch {
	case p.cur().Is(";"):
		p.next()
		return nil
	case p.cur().Is(":") || p.cur().Is("{"):
		return p.parseClass(nameTok, isStruct)
	}
	p.pos = start
	p.skipDeclaration()
	return nil
}

func (p *Parser) parseClass(nameTok Token, isStruct bool) error {
	cls := &classDecl{Name: nameTok.Literal, Path: p.path, Line: nameTok.Pos.Line}

	if p.cur().Is(":") {
		p.next()
		for {
			base, err := p.parseBase(cls)
			if err != nil {
				return err
			}
			cls.Bases = append(cls.Bases, base)
			if !p.cur().Is(",") {
				break
			}
			p.next()
		}
	}
	if !p.cur().Is("{") {
		return p.errorf(p.cur().Pos.Line, cls.Name, "expected '{' after base list, found %q", p.cur().Literal)
	}
	p.next()

	acc := accessPrivate
	if isStruct {
		acc = accessPublic
	}

	for {
		tok := p.cur()
		switch {
		case p.atEOF():
			return p.errorf(nameTok.Pos.Line, cls.Name, "unterminated class body")
		case tok.Is("}"):
			p.next()
			p.skipDeclaration()
			p.classes = append(p.classes, cls)
			return nil
		case (tok.Is("public") || tok.Is("protected") || tok.Is("private")) && p.peek(1).Is(":"):
			switch tok.Literal {
			case "public":
				acc = accessPublic
			case "protected":
				acc = accessProtected
			default:
				acc = accessPrivate
			}
			p.next()
			p.next()
		case tok.Is(";"):
			p.next()
		case tok.Is("template"):
			p.next()
			p.skipTemplateParams()
			p.skipDeclaration()
		case tok.Is("friend") || tok.Is("using") || tok.Is("typedef") || tok.Is("static_assert") ||
			tok.Is("class") || tok.Is("struct") || tok.Is("union") || tok.Is("enum"):
			p.skipDeclaration()
		default:
			p.parseMember(cls, acc)
		}
	}
}

// parseBase reads one entry of a base-specifier list and returns the
// unqualified base name with template arguments stripped.
func (p *Parser) parseBase(cls *classDecl) (string, error) {
	line := p.cur().Pos.Line
	name := ""
	depth := 0
	for !p.atEOF() {
		tok := p.cur()
		if depth == 0 && (tok.Is(",") || tok.Is("{")) {
			break
		}
		switch {
		case tok.Is("<"):
			depth++
		case tok.Is(">"):
			depth--
		case depth == 0 && tok.Type == TokenIdentifier:
			switch tok.Literal {
			case "public", "protected", "private", "virtual":
			default:
				name = tok.Literal
			}
		}
		p.next()
	}
	if name == "" {
		return "", p.errorf(line, cls.Name, "malformed base class list")
	}
	return name, nil
}

var declSpecifiers = map[string]bool{
	"virtual":   true,
	"inline":    true,
	"explicit":  true,
	"constexpr": true,
	"extern":    true,
	"mutable":   true,
}

// parseMember reads a member declaration. Methods are recorded; everything
// else is skipped.
func (p *Parser) parseMember(cls *classDecl, acc access) {
	start := p.pos
	depth := 0
	for {
		tok := p.cur()
		if p.atEOF() || tok.Is("operator") || tok.Is("~") {
			p.pos = start
			p.skipDeclaration()
			return
		}
		if depth == 0 && (tok.Is(";") || tok.Is("=") || tok.Is("{") || tok.Is("}") || tok.Is(":")) {
			p.pos = start
			p.skipDeclaration()
			return
		}
		if depth == 0 && tok.Is("(") {
			break
		}
		switch {
		case tok.Is("<"):
			depth++
		case tok.Is(">"):
			depth--
		}
		p.next()
	}

	prefix := p.toks[start:p.pos]
	static := false
	var typeToks []Token
	for _, tok := range prefix {
		switch {
		case tok.Is("static"):
			static = true
		case tok.Type == TokenIdentifier && declSpecifiers[tok.Literal]:
		default:
			typeToks = append(typeToks, tok)
		}
	}
	if len(typeToks) < 2 {
		// Constructors and macro invocations have no return type.
		p.pos = start
		p.skipDeclaration()
		return
	}
	nameTok := typeToks[len(typeToks)-1]
	typeToks = typeToks[:len(typeToks)-1]
	if nameTok.Type != TokenIdentifier || nameTok.Literal == cls.Name {
		p.pos = start
		p.skipDeclaration()
		return
	}

	p.next() // (
	params := p.parseParams()

	// Trailing qualifiers; the declaration ends at ';', '= 0;' or a body.
	for p.cur().Is("const") || p.cur().Is("volatile") || p.cur().Is("override") ||
		p.cur().Is("final") || p.cur().Is("&") {
		p.next()
	}
	if p.cur().Is("noexcept") {
		p.next()
		if p.cur().Is("(") {
			p.skipBalanced("(", ")")
		}
	}
	p.skipDeclaration()

	if acc != accessPublic {
		return
	}
	cls.Methods = append(cls.Methods, methodDecl{
		Name:   nameTok.Literal,
		Return: spell(typeToks),
		Params: params,
		Static: static,
		Line:   nameTok.Pos.Line,
	})
}

// builtinTypeWords never name a parameter.
var builtinTypeWords = map[string]bool{
	"void": true, "bool": true, "char": true, "short": true, "int": true,
	"long": true, "signed": true, "unsigned": true, "float": true, "double": true,
}

// parseParams reads a parameter list; the current token follows '('.
func (p *Parser) parseParams() []paramDecl {
	var groups [][]Token
	var group []Token
	depth := 0
	for !p.atEOF() {
		tok := p.cur()
		if depth == 0 && tok.Is(")") {
			p.next()
			break
		}
		switch {
		case tok.Is("(") || tok.Is("<") || tok.Is("[") || tok.Is("{"):
			depth++
		case tok.Is(")") || tok.Is(">") || tok.Is("]") || tok.Is("}"):
			depth--
		}
		if depth == 0 && tok.Is(",") {
			groups = append(groups, group)
			group = nil
		} else {
			group = append(group, tok)
		}
		p.next()
	}
	if len(group) > 0 || len(groups) > 0 {
		groups = append(groups, group)
	}

	if len(groups) == 1 && len(groups[0]) == 1 && groups[0][0].Is("void") {
		return nil
	}

	params := make([]paramDecl, 0, len(groups))
	for _, g := range groups {
		// Drop a default argument.
		for i, tok := range g {
			if tok.Is("=") {
				g = g[:i]
				break
			}
		}
		var toks []Token
		for _, tok := range g {
			if tok.Is("const") || tok.Is("volatile") {
				continue
			}
			toks = append(toks, tok)
		}
		var pd paramDecl
		if n := len(toks); n > 1 && toks[n-1].Type == TokenIdentifier && !builtinTypeWords[toks[n-1].Literal] {
			pd.Name = toks[n-1].Literal
			toks = toks[:n-1]
		}
		pd.Type = spell(toks)
		params = append(params, pd)
	}
	return params
}

// spell renders type tokens as a normalised spelling: qualifiers dropped,
// words separated by one space, scope operators glued.
func spell(toks []Token) string {
	var sb strings.Builder
	prevScope := true
	for _, tok := range toks {
		if tok.Is("const") || tok.Is("volatile") {
			continue
		}
		if tok.Type == TokenScope {
			sb.WriteString("::")
			prevScope = true
			continue
		}
		if !prevScope {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok.Literal)
		prevScope = false
	}
	return strings.TrimPrefix(sb.String(), "std::")
}

// skipTemplateParams skips a `<...>` list if present.
func (p *Parser) skipTemplateParams() {
	if p.cur().Is("<") {
		p.skipBalanced("<", ">")
	}
}

// skipBalanced consumes from an opening token through its matching close.
func (p *Parser) skipBalanced(open, close string) {
	depth := 0
	for !p.atEOF() {
		tok := p.cur()
		p.next()
		switch {
		case tok.Is(open):
			depth++
		case tok.Is(close):
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

// skipDeclaration consumes one declaration. Type declarations
// (`struct A {...} a;`) run to their semicolon; anything else ends at a
// semicolon or after a body.
func (p *Parser) skipDeclaration() {
	first := p.cur()
	typeDecl := first.Is("class") || first.Is("struct") || first.Is("union") ||
		first.Is("enum") || first.Is("typedef") || first.Is("friend")
	for !p.atEOF() {
		tok := p.cur()
		switch {
		case tok.Is(";"):
			p.next()
			return
		case tok.Is("}"):
			// End of the enclosing scope; leave it for the caller.
			return
		case tok.Is("("):
			p.skipBalanced("(", ")")
		case tok.Is("{"):
			p.skipBalanced("{", "}")
			if typeDecl {
				continue
			}
			switch {
			case p.cur().Is(";"):
				p.next()
				return
			case p.cur().Is(",") || p.cur().Is("{"):
				// Constructor initialiser list with braced members.
				continue
			}
			return
		default:
			p.next()
		}
	}
}
