package header

import "testing"

func TestLexer_SkipsIgnoredText(t *testing.T) {
	input := `// line comment
#define FOO(x) \
  do { x; } while (0)
/* block
   comment */ class A : public B { int f(const char *s = "a;}"); };
  #pragma once
x::y 0x1F 'c'`

	want := []struct {
		typ TokenType
		lit string
	}{
		{TokenIdentifier, "class"},
		{TokenIdentifier, "A"},
		{TokenPunct, ":"},
		{TokenIdentifier, "public"},
		{TokenIdentifier, "B"},
		{TokenPunct, "{"},
		{TokenIdentifier, "int"},
		{TokenIdentifier, "f"},
		{TokenPunct, "("},
		{TokenIdentifier, "const"},
		{TokenIdentifier, "char"},
		{TokenPunct, "*"},
		{TokenIdentifier, "s"},
		{TokenPunct, "="},
		{TokenLiteral, ""},
		{TokenPunct, ")"},
		{TokenPunct, ";"},
		{TokenPunct, "}"},
		{TokenPunct, ";"},
		{TokenIdentifier, "x"},
		{TokenScope, "::"},
		{TokenIdentifier, "y"},
		{TokenNumber, "0x1F"},
		{TokenLiteral, ""},
		{TokenEOF, ""},
	}

	toks := NewLexer(input).Tokens()
	if len(toks) != len(want) {
		for _, tok := range toks {
			t.Log(tok)
		}
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Literal != w.lit {
			t.Errorf("token %d = %s, want %s(%q)", i, toks[i], w.typ, w.lit)
		}
	}
}

func TestLexer_Positions(t *testing.T) {
	toks := NewLexer("class A\n{\n  void f();\n};").Tokens()
	if toks[0].Pos.Line != 1 || toks[0].Pos.Column != 1 {
		t.Errorf("class at %d:%d", toks[0].Pos.Line, toks[0].Pos.Column)
	}
	if toks[3].Literal != "void" || toks[3].Pos.Line != 3 || toks[3].Pos.Column != 3 {
		t.Errorf("void token = %s", toks[3])
	}
}

func TestLexer_HashInsideLine(t *testing.T) {
	// '#' that does not start a line is punctuation, not a directive.
	toks := NewLexer("a # b").Tokens()
	if len(toks) != 4 || toks[1].Literal != "#" || toks[2].Literal != "b" {
		t.Errorf("tokens = %v", toks)
	}
}
