package header

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the C++ header subset
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdentifier // foo, uint8_t, class
	TokenNumber     // 42, 0x7f, 1.5f
	TokenLiteral    // "text", 'c' (contents are not kept)
	TokenScope      // ::
	TokenPunct      // any other single character: { } ( ) < > , ; : = * & ~ [ ]
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenIdentifier: "IDENTIFIER",
	TokenNumber:     "NUMBER",
	TokenLiteral:    "LITERAL",
	TokenScope:      "SCOPE",
	TokenPunct:      "PUNCT",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position is a location in a header.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Token is a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Is reports whether tok is the punctuation or identifier lit.
func (tok Token) Is(lit string) bool {
	return (tok.Type == TokenPunct || tok.Type == TokenIdentifier || tok.Type == TokenScope) && tok.Literal == lit
}

func (tok Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", tok.Type, tok.Literal, tok.Pos.Line, tok.Pos.Column)
}
