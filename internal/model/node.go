// Package model defines the data structures for abstraction mining.
package model

// NodeKind represents the syntactic category of a tree node.
// The set is closed: the canonicalizer and generalizer match on it
// exhaustively instead of inspecting payloads at runtime.
type NodeKind int

const (
	// NodeIdent is a reference to a named variable or primitive.
	NodeIdent NodeKind = iota
	// NodeLiteral is a constant leaf value.
	NodeLiteral
	// NodeCall applies Children[0] to the remaining children.
	NodeCall
	// NodeCond is a conditional: condition, then-branch, else-branch.
	NodeCond
	// NodeLoop iterates Children[1:] with Name bound to each element of Children[0].
	NodeLoop
	// NodeLambda binds Params in all children.
	NodeLambda
	// NodeLet binds Name to Children[0] within Children[1:].
	NodeLet
	// NodeSeq evaluates children in order; children are statement positions.
	NodeSeq
	// NodeHole is a parameter slot inside a template shape. It never
	// appears in an ingested Program; Value holds the hole index.
	NodeHole
)

func (k NodeKind) String() string {
	switch k {
	case NodeIdent:
		return "ident"
	case NodeLiteral:
		return "lit"
	case NodeCall:
		return "call"
	case NodeCond:
		return "if"
	case NodeLoop:
		return "loop"
	case NodeLambda:
		return "lam"
	case NodeLet:
		return "let"
	case NodeSeq:
		return "seq"
	case NodeHole:
		return "hole"
	default:
		return "unknown"
	}
}

// LiteralKind tags the spelling class of a literal leaf.
type LiteralKind int

const (
	// LitNumber is a numeric literal.
	LitNumber LiteralKind = iota
	// LitString is a string literal.
	LitString
	// LitBool is a boolean literal.
	LitBool
)

func (k LiteralKind) String() string {
	switch k {
	case LitNumber:
		return "num"
	case LitString:
		return "str"
	case LitBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Node is a tagged tree element. A Node is owned exclusively by its
// enclosing Program; trees are never shared across programs.
type Node struct {
	Kind     NodeKind
	Name     string      // identifier name, or binder name for Let/Loop
	Params   []string    // Lambda binders
	Lit      LiteralKind // literal class, meaningful when Kind == NodeLiteral
	Value    string      // literal spelling, or hole index for NodeHole
	Children []*Node
}

// Size returns the total node count of the subtree.
func (n *Node) Size() int {
	count := 1
	for _, child := range n.Children {
		count += child.Size()
	}

	return count
}

// Clone returns a deep copy of the subtree.
func (n *Node) Clone() *Node {
	copied := &Node{
		Kind:  n.Kind,
		Name:  n.Name,
		Lit:   n.Lit,
		Value: n.Value,
	}

	if len(n.Params) > 0 {
		copied.Params = append([]string(nil), n.Params...)
	}

	if len(n.Children) > 0 {
		copied.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			copied.Children[i] = child.Clone()
		}
	}

	return copied
}

// Binders returns the names the node introduces into the scope of the
// child at the given index. Let and Loop do not bind inside their first
// child (the bound value or the iterated collection).
func (n *Node) Binders(childIndex int) []string {
	switch n.Kind {
	case NodeLambda:
		return n.Params
	case NodeLet, NodeLoop:
		if childIndex >= 1 {
			return []string{n.Name}
		}
	}

	return nil
}
