package model

import (
	"fmt"
	"strings"
)

// Program is an ordered forest of top-level nodes plus an identifier,
// representing one corpus entry. Programs are immutable once ingested;
// the rewriter produces new Program values and leaves the originals
// intact for validation diffing.
type Program struct {
	ID    string
	Roots []*Node
}

// Size returns the total node count across all roots.
func (p *Program) Size() int {
	total := 0
	for _, root := range p.Roots {
		total += root.Size()
	}

	return total
}

// Clone returns a deep copy of the program.
func (p *Program) Clone() *Program {
	copied := &Program{ID: p.ID, Roots: make([]*Node, len(p.Roots))}
	for i, root := range p.Roots {
		copied.Roots[i] = root.Clone()
	}

	return copied
}

// At resolves a position's path against the program and returns the node
// it addresses. Positions are only valid against the Program version they
// were computed from.
func (p *Program) At(pos Position) (*Node, error) {
	if len(pos.Path) == 0 {
		return nil, fmt.Errorf("empty path for program %s", p.ID)
	}

	rootIndex := pos.Path[0]
	if rootIndex < 0 || rootIndex >= len(p.Roots) {
		return nil, fmt.Errorf("root index %d out of range in program %s", rootIndex, p.ID)
	}

	node := p.Roots[rootIndex]

	for _, step := range pos.Path[1:] {
		if step < 0 || step >= len(node.Children) {
			return nil, fmt.Errorf("path %s invalid in program %s", pos, p.ID)
		}

		node = node.Children[step]
	}

	return node, nil
}

// Position is a path of child indices from a Program's roots to a
// specific node. Path[0] selects the root; subsequent steps select
// children.
type Position struct {
	ProgramID string
	Path      []int
}

// Depth returns the path length; deeper positions sort later.
func (p Position) Depth() int {
	return len(p.Path)
}

// Equal reports whether two positions address the same node.
func (p Position) Equal(other Position) bool {
	if p.ProgramID != other.ProgramID || len(p.Path) != len(other.Path) {
		return false
	}

	for i := range p.Path {
		if p.Path[i] != other.Path[i] {
			return false
		}
	}

	return true
}

// Conflicts reports whether two positions cover overlapping tree regions:
// the same node, or one a strict ancestor of the other. Positions in
// different programs never conflict.
func (p Position) Conflicts(other Position) bool {
	if p.ProgramID != other.ProgramID {
		return false
	}

	shorter, longer := p.Path, other.Path
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	for i := range shorter {
		if shorter[i] != longer[i] {
			return false
		}
	}

	return true
}

// Child returns the position of the index-th child.
func (p Position) Child(index int) Position {
	path := make([]int, 0, len(p.Path)+1)
	path = append(path, p.Path...)
	path = append(path, index)

	return Position{ProgramID: p.ProgramID, Path: path}
}

func (p Position) String() string {
	steps := make([]string, len(p.Path))
	for i, step := range p.Path {
		steps[i] = fmt.Sprintf("%d", step)
	}

	return p.ProgramID + ":" + strings.Join(steps, ".")
}
