package edn

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of EDN token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenString
	TokenAtom
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenString:
		return "String"
	case TokenAtom:
		return "Atom"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenLeftBracket:
		return "'['"
	case TokenRightBracket:
		return "']'"
	default:
		return fmt.Sprintf("Token(%d)", int(t))
	}
}

// Pos is a 1-based line/column position in the input.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
	Pos   Pos
}

// SyntaxError reports malformed input with its position.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at %s", e.Msg, e.Pos)
}

// Lexer produces tokens on demand from the input.
type Lexer struct {
	input  string
	pos    int
	cur    Pos
	peeked *Token
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, cur: Pos{Line: 1, Col: 1}}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked != nil {
		return *l.peeked, nil
	}
	tok, err := l.scan()
	if err != nil {
		return Token{}, err
	}
	l.peeked = &tok
	return tok, nil
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.scan()
}

func (l *Lexer) scan() (Token, error) {
	l.skipWhitespaceAndComments()
	start := l.cur
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	switch ch := l.input[l.pos]; ch {
	case '"':
		s, err := l.readString()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenString, Value: s, Pos: start}, nil
	case '(':
		l.advance()
		return Token{Type: TokenLeftParen, Pos: start}, nil
	case ')':
		l.advance()
		return Token{Type: TokenRightParen, Pos: start}, nil
	case '[':
		l.advance()
		return Token{Type: TokenLeftBracket, Pos: start}, nil
	case ']':
		l.advance()
		return Token{Type: TokenRightBracket, Pos: start}, nil
	case '{', '}':
		return Token{}, &SyntaxError{Pos: start, Msg: "maps are not supported"}
	default:
		atom := l.readAtom()
		if atom == "" {
			return Token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", ch)}
		}
		return Token{Type: TokenAtom, Value: atom, Pos: start}, nil
	}
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.cur.Line++
		l.cur.Col = 1
	} else {
		l.cur.Col++
	}
	l.pos++
}

// skipWhitespaceAndComments skips whitespace, commas and ; comments
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case unicode.IsSpace(rune(ch)) || ch == ',':
			l.advance()
		case ch == ';':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readString() (string, error) {
	start := l.cur
	var sb strings.Builder
	l.advance() // opening quote

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch ch {
		case '"':
			l.advance()
			return sb.String(), nil
		case '\\':
			l.advance()
			if l.pos >= len(l.input) {
				return "", &SyntaxError{Pos: l.cur, Msg: "unexpected end of input in string"}
			}
			switch esc := l.input[l.pos]; esc {
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'n':
				sb.WriteByte('\n')
			case '\\', '"':
				sb.WriteByte(esc)
			default:
				return "", &SyntaxError{Pos: l.cur, Msg: fmt.Sprintf("invalid escape sequence '\\%c'", esc)}
			}
			l.advance()
		default:
			sb.WriteByte(ch)
			l.advance()
		}
	}
	return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
}

func (l *Lexer) readAtom() string {
	begin := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isDelimiter(ch) || unicode.IsSpace(rune(ch)) || ch == ',' {
			break
		}
		l.advance()
	}
	return l.input[begin:l.pos]
}

func isDelimiter(ch byte) bool {
	return ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '{' || ch == '}' || ch == '"' || ch == ';'
}
