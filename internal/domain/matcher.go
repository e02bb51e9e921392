package domain

import (
	"strconv"

	m "refract.dev/pkg/refract/internal/model"
)

// MatchShape checks whether a concrete subtree is an instantiation of a
// template shape and, if so, returns the hole fills in hole-id order.
// Repeated holes must be filled identically; fills may not reference
// binders introduced inside the matched region.
func MatchShape(shape *m.Node, node *m.Node, holeCount int) ([]*m.Node, bool) {
	matcher := &shapeMatcher{fills: make([]*m.Node, holeCount)}
	if !matcher.match(shape, node, nil, nil) {
		return nil, false
	}

	return matcher.fills, true
}

type shapeMatcher struct {
	fills      []*m.Node
	nextBinder int
}

func (sm *shapeMatcher) match(shape, node *m.Node, shapeEnv, nodeEnv *scope) bool {
	if shape.Kind == m.NodeHole {
		id, err := strconv.Atoi(shape.Value)
		if err != nil || id >= len(sm.fills) {
			return false
		}

		if _, ok := fillCategory(node); !ok {
			return false
		}

		for name := range freeIdents(node) {
			if _, bound := nodeEnv.lookup(name); bound {
				return false
			}
		}

		if sm.fills[id] != nil {
			return equalNodes(sm.fills[id], node)
		}

		sm.fills[id] = node.Clone()

		return true
	}

	if shape.Kind != node.Kind || len(shape.Children) != len(node.Children) {
		return false
	}

	switch shape.Kind {
	case m.NodeIdent:
		shapeIndex, shapeBound := shapeEnv.lookup(shape.Name)
		nodeIndex, nodeBound := nodeEnv.lookup(node.Name)

		if shapeBound != nodeBound {
			return false
		}

		if shapeBound {
			return shapeIndex == nodeIndex
		}

		return shape.Name == node.Name

	case m.NodeLiteral:
		return shape.Lit == node.Lit && shape.Value == node.Value

	case m.NodeLambda:
		if len(shape.Params) != len(node.Params) {
			return false
		}

		for i := range shape.Params {
			shapeEnv = &scope{parent: shapeEnv, name: shape.Params[i], index: sm.nextBinder}
			nodeEnv = &scope{parent: nodeEnv, name: node.Params[i], index: sm.nextBinder}
			sm.nextBinder++
		}

		return sm.matchChildren(shape, node, func(int) (*scope, *scope) { return shapeEnv, nodeEnv })

	case m.NodeLet, m.NodeLoop:
		boundShape := &scope{parent: shapeEnv, name: shape.Name, index: sm.nextBinder}
		boundNode := &scope{parent: nodeEnv, name: node.Name, index: sm.nextBinder}
		sm.nextBinder++

		return sm.matchChildren(shape, node, func(i int) (*scope, *scope) {
			if i == 0 {
				return shapeEnv, nodeEnv
			}

			return boundShape, boundNode
		})

	default:
		return sm.matchChildren(shape, node, func(int) (*scope, *scope) { return shapeEnv, nodeEnv })
	}
}

func (sm *shapeMatcher) matchChildren(shape, node *m.Node, envsFor func(int) (*scope, *scope)) bool {
	for i := range shape.Children {
		shapeEnv, nodeEnv := envsFor(i)

		if !sm.match(shape.Children[i], node.Children[i], shapeEnv, nodeEnv) {
			return false
		}
	}

	return true
}

// FindOccurrences scans the corpus for instantiations of a template
// shape, in corpus order, and returns them as bound occurrences.
func FindOccurrences(programs []*m.Program, shape *m.Node, holeCount int) []m.BoundOccurrence {
	var found []m.BoundOccurrence

	for _, program := range programs {
		for rootIndex, root := range program.Roots {
			pos := m.Position{ProgramID: program.ID, Path: []int{rootIndex}}
			findInSubtree(program.ID, root, pos, map[string]bool{}, shape, holeCount, &found)
		}
	}

	return found
}

func findInSubtree(programID string, node *m.Node, pos m.Position, enclosing map[string]bool, shape *m.Node, holeCount int, found *[]m.BoundOccurrence) {
	if fills, ok := MatchShape(shape, node, holeCount); ok {
		complete := true

		for _, fill := range fills {
			if fill == nil {
				complete = false
				break
			}
		}

		if complete {
			_, slots := Canonicalize(node, enclosing)
			*found = append(*found, m.BoundOccurrence{
				Occurrence: m.Occurrence{ProgramID: programID, Pos: pos, Node: node, Slots: slots},
				Fills:      fills,
			})
		}
	}

	for i, child := range node.Children {
		childEnclosing := enclosing

		if binders := node.Binders(i); len(binders) > 0 {
			childEnclosing = make(map[string]bool, len(enclosing)+len(binders))
			for name := range enclosing {
				childEnclosing[name] = true
			}

			for _, name := range binders {
				childEnclosing[name] = true
			}
		}

		findInSubtree(programID, child, pos.Child(i), childEnclosing, shape, holeCount, found)
	}
}
