package edn

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType represents the type of EDN node
type NodeType int

const (
	NodeNil NodeType = iota
	NodeBool
	NodeInt
	NodeFloat
	NodeString
	NodeSymbol
	NodeKeyword
	NodeList
	NodeVector
)

var nodeTypeNames = [...]string{"nil", "bool", "int", "float", "string", "symbol", "keyword", "list", "vector"}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// Node represents an EDN value
type Node struct {
	Type  NodeType
	Pos   Pos
	Value string // atoms and strings
	Nodes []Node // lists and vectors
}

// String returns the node in EDN form
func (n Node) String() string {
	switch n.Type {
	case NodeNil:
		return "nil"
	case NodeString:
		return strconv.Quote(n.Value)
	case NodeList:
		return "(" + joinNodes(n.Nodes) + ")"
	case NodeVector:
		return "[" + joinNodes(n.Nodes) + "]"
	default:
		return n.Value
	}
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, " ")
}

// AsInt returns the int value of an int node
func (n Node) AsInt() (int64, error) {
	if n.Type != NodeInt {
		return 0, fmt.Errorf("node is not an int")
	}
	return strconv.ParseInt(strings.TrimRight(n.Value, "N"), 10, 64)
}

// AsFloat returns the float value of a float node
func (n Node) AsFloat() (float64, error) {
	if n.Type != NodeFloat {
		return 0, fmt.Errorf("node is not a float")
	}
	return strconv.ParseFloat(strings.TrimRight(n.Value, "M"), 64)
}

// IsCollection returns true for lists and vectors
func (n Node) IsCollection() bool {
	return n.Type == NodeList || n.Type == NodeVector
}
