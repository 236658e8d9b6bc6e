package edn

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	symbolChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.*+!-_?$%&=<>/#'"

	intPattern   = regexp.MustCompile(`^[+-]?\d+N?$`)
	floatPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?M?$`)
)

// Parser reads EDN values from a Lexer
type Parser struct {
	lexer *Lexer
}

// NewParser creates a new parser
func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// Parse parses exactly one value from input.
func Parse(input string) (*Node, error) {
	p := NewParser(NewLexer(input))
	nodes, err := p.ParseAll()
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return nil, &SyntaxError{Pos: Pos{Line: 1, Col: 1}, Msg: "empty input"}
	case 1:
		return &nodes[0], nil
	default:
		return nil, &SyntaxError{Pos: nodes[1].Pos, Msg: "unexpected trailing value"}
	}
}

// ParseAll reads all values until EOF
func (p *Parser) ParseAll() ([]Node, error) {
	var nodes []Node
	for {
		tok, err := p.lexer.Peek()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return nodes, nil
		}
		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, *node)
		}
	}
}

// readNode reads a single value. A nil node with nil error is a #_ discard.
func (p *Parser) readNode() (*Node, error) {
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}

	switch tok.Type {
	case TokenEOF:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected EOF"}
	case TokenString:
		return &Node{Type: NodeString, Value: tok.Value, Pos: tok.Pos}, nil
	case TokenAtom:
		if tok.Value == "#_" {
			if _, err := p.readNode(); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return classifyAtom(tok)
	case TokenLeftParen:
		return p.readSeq(NodeList, tok, TokenRightParen)
	case TokenLeftBracket:
		return p.readSeq(NodeVector, tok, TokenRightBracket)
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %v", tok.Type)}
	}
}

func (p *Parser) readSeq(typ NodeType, open Token, closer TokenType) (*Node, error) {
	node := &Node{Type: typ, Pos: open.Pos}
	for {
		tok, err := p.lexer.Peek()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case closer:
			_, _ = p.lexer.Next()
			return node, nil
		case TokenEOF:
			return nil, &SyntaxError{Pos: open.Pos, Msg: fmt.Sprintf("unterminated %v", typ)}
		}
		child, err := p.readNode()
		if err != nil {
			return nil, err
		}
		if child != nil {
			node.Nodes = append(node.Nodes, *child)
		}
	}
}

func classifyAtom(tok Token) (*Node, error) {
	value := tok.Value
	switch value {
	case "nil":
		return &Node{Type: NodeNil, Pos: tok.Pos}, nil
	case "true", "false":
		return &Node{Type: NodeBool, Value: value, Pos: tok.Pos}, nil
	}

	if strings.HasPrefix(value, ":") {
		if len(value) == 1 {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "empty keyword"}
		}
		if err := validateSymbol(value[1:]); err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: err.Error()}
		}
		return &Node{Type: NodeKeyword, Value: value, Pos: tok.Pos}, nil
	}
	if intPattern.MatchString(value) {
		return &Node{Type: NodeInt, Value: value, Pos: tok.Pos}, nil
	}
	if floatPattern.MatchString(value) {
		return &Node{Type: NodeFloat, Value: value, Pos: tok.Pos}, nil
	}
	if err := validateSymbol(value); err != nil {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: err.Error()}
	}
	return &Node{Type: NodeSymbol, Value: value, Pos: tok.Pos}, nil
}

func validateSymbol(s string) error {
	if unicode.IsDigit(rune(s[0])) {
		return fmt.Errorf("symbol cannot start with digit: %s", s)
	}
	for _, ch := range strings.ToUpper(s) {
		if !strings.ContainsRune(symbolChars, ch) {
			return fmt.Errorf("invalid character '%c' in symbol: %s", ch, s)
		}
	}
	return nil
}
