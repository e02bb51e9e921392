package model

// Signature is a canonical fingerprint of a subtree with local binder
// names, free identifier names and literal values replaced by positional
// placeholders. Two subtrees are structurally interchangeable up to
// renaming iff their Signatures are equal.
type Signature string

// SlotKind tags one abstracted position recorded by the canonicalizer.
type SlotKind int

const (
	// SlotName is an identifier reference not bound inside the subtree.
	SlotName SlotKind = iota
	// SlotLiteral is a literal leaf.
	SlotLiteral
)

// Slot records one abstracted concrete value, in placeholder order, so
// the concrete spelling can be reconstructed after generalization.
type Slot struct {
	Kind     SlotKind
	Name     string // concrete identifier name for SlotName
	Lit      LiteralKind
	Value    string // concrete spelling for SlotLiteral
	Captured bool   // name is bound by a binder enclosing the subtree
}

// Occurrence is one concrete appearance of a signature: the program it
// was found in, the position of the subtree, the subtree itself and the
// normalization map recorded while computing its signature.
type Occurrence struct {
	ProgramID string
	Pos       Position
	Node      *Node
	Slots     []Slot
}

// HoleKind is the syntactic category of value a hole accepts.
type HoleKind int

const (
	// HoleExpr accepts any self-contained expression.
	HoleExpr HoleKind = iota
	// HoleName accepts an identifier reference.
	HoleName
	// HoleLiteral accepts a literal value.
	HoleLiteral
)

func (k HoleKind) String() string {
	switch k {
	case HoleExpr:
		return "expr"
	case HoleName:
		return "name"
	case HoleLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Hole is one parameter position of a template.
type Hole struct {
	Kind HoleKind
	Lit  LiteralKind // meaningful for HoleLiteral
}

// BoundOccurrence pairs an occurrence with the concrete values that fill
// the template's holes at that occurrence, in hole order.
type BoundOccurrence struct {
	Occurrence
	Fills []*Node
}

// Template is a generalized pattern: a representative shape whose hole
// positions are NodeHole markers, the holes in canonical (preorder)
// order, and the occurrences it was derived from. Every occurrence is
// obtainable from Shape by substituting each hole with the matching
// fill.
type Template struct {
	Sig         Signature
	Shape       *Node
	Holes       []Hole
	Occurrences []BoundOccurrence
}

// BodySize returns the node count of the template shape, holes included.
func (t *Template) BodySize() int {
	return t.Shape.Size()
}

// Candidate is a scored, not-yet-accepted template together with the
// positions its occurrences would consume.
type Candidate struct {
	Template *Template
	Score    int
	Consumed []Position
}

// Selection is the chosen subset of candidates, in pick order. Consumed
// position sets are pairwise disjoint and never nested.
type Selection struct {
	Picked []Candidate
}

// TotalScore sums the net savings of all picked candidates.
func (s Selection) TotalScore() int {
	total := 0
	for _, candidate := range s.Picked {
		total += candidate.Score
	}

	return total
}

// Abstraction is a finalized, named helper materialized from a template.
// Abstractions are the unit emitted to the rewritten corpus.
type Abstraction struct {
	Name     string
	Params   []string
	Body     *Node
	Template *Template
}
