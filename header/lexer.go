package header

// ---------------------------------------------------------------------------
// Lexer: tokenizer for C++ class declarations
// ---------------------------------------------------------------------------

// Lexer tokenizes a C++ header. Comments, preprocessor directives and the
// contents of string and character literals never reach the parser.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        byte // current character
	line      int  // current line (1-based)
	col       int  // current column (1-based)
	lineStart bool // only whitespace seen since the last newline
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:     input,
		line:      1,
		lineStart: true,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
		l.lineStart = true
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.col++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// Tokens lexes the whole input.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipIgnored()
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case isIdentStart(l.ch):
		start := l.pos
		for isIdentPart(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenIdentifier, Literal: l.input[start:l.pos], Pos: pos}

	case isDigit(l.ch):
		start := l.pos
		for isIdentPart(l.ch) || l.ch == '.' || l.ch == '\'' {
			l.readChar()
		}
		return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}

	case l.ch == '"' || l.ch == '\'':
		l.skipLiteral(l.ch)
		return Token{Type: TokenLiteral, Pos: pos}

	case l.ch == ':' && l.peekChar() == ':':
		l.readChar()
		l.readChar()
		return Token{Type: TokenScope, Literal: "::", Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenPunct, Literal: string(ch), Pos: pos}
}

// skipIgnored skips whitespace, comments and preprocessor lines.
func (l *Lexer) skipIgnored() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' || l.ch == '\f' || l.ch == '\v':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		case l.ch == '#' && l.lineStart:
			l.skipDirective()
		default:
			if l.ch != 0 {
				l.lineStart = false
			}
			return
		}
	}
}

// skipDirective skips a preprocessor line, following backslash continuations.
// Both branches of a conditional are therefore seen by the parser.
func (l *Lexer) skipDirective() {
	for l.ch != 0 {
		if l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r') {
			l.readChar()
			if l.ch == '\r' && l.peekChar() == '\n' {
				l.readChar()
			}
			l.readChar()
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
			continue
		}
		if l.ch == '\n' {
			return
		}
		l.readChar()
	}
}

func (l *Lexer) skipLiteral(quote byte) {
	l.readChar()
	for l.ch != 0 && l.ch != quote && l.ch != '\n' {
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	if l.ch == quote {
		l.readChar()
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
