// Package domain contains the core abstraction mining pipeline.
package domain

import (
	"fmt"
	"strings"

	m "refract.dev/pkg/refract/internal/model"
)

// scope is a persistent lexical environment mapping binder names to
// their positional index within the subtree being canonicalized.
type scope struct {
	parent *scope
	name   string
	index  int
}

func (s *scope) lookup(name string) (int, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.index, true
		}
	}

	return 0, false
}

// canonState accumulates one subtree's canonical form. Binder names get
// positional indices in order of first introduction, free identifiers
// get positional placeholders in order of first appearance, and literal
// values are replaced by a placeholder tagged with the literal kind.
type canonState struct {
	out        strings.Builder
	nextBinder int
	freeIndex  map[string]int
	slots      []m.Slot
	enclosing  map[string]bool
	maxDepth   int // 0 means unbounded
}

// Canonicalize computes the comparison-stable signature of a subtree
// together with the normalization map recording which concrete names and
// literals were abstracted, in placeholder order. The enclosing set
// holds names bound by binders above the subtree in its program; it only
// affects the recorded capture flags, never the signature itself, so
// canonicalization stays deterministic and total.
func Canonicalize(node *m.Node, enclosing map[string]bool) (m.Signature, []m.Slot) {
	state := &canonState{freeIndex: map[string]int{}, enclosing: enclosing}
	state.walk(node, nil, 1)

	return m.Signature(state.out.String()), state.slots
}

// SkeletonSignature computes a coarse signature that truncates the tree
// below the given depth, replacing deeper children with a wildcard. It
// keys the generalization groups in which structurally divergent
// occurrences may still unify through expression holes.
func SkeletonSignature(node *m.Node, depth int) m.Signature {
	state := &canonState{freeIndex: map[string]int{}, maxDepth: depth}
	state.walk(node, nil, 1)

	return m.Signature(state.out.String())
}

func (cs *canonState) walk(node *m.Node, env *scope, depth int) {
	if cs.maxDepth > 0 && depth > cs.maxDepth {
		cs.out.WriteByte('?')
		return
	}

	switch node.Kind {
	case m.NodeIdent:
		cs.writeIdent(node.Name, env)

	case m.NodeLiteral:
		fmt.Fprintf(&cs.out, "#%s", node.Lit)
		cs.slots = append(cs.slots, m.Slot{Kind: m.SlotLiteral, Lit: node.Lit, Value: node.Value})

	case m.NodeHole:
		// Holes only occur in template shapes, never in ingested programs.
		fmt.Fprintf(&cs.out, "?%s", node.Value)

	case m.NodeLambda:
		fmt.Fprintf(&cs.out, "(lam/%d", len(node.Params))
		inner := env

		for _, param := range node.Params {
			inner = &scope{parent: inner, name: param, index: cs.nextBinder}
			cs.nextBinder++
		}

		cs.walkChildren(node, func(int) *scope { return inner }, depth)
		cs.out.WriteByte(')')

	case m.NodeLet, m.NodeLoop:
		fmt.Fprintf(&cs.out, "(%s", node.Kind)

		bound := &scope{parent: env, name: node.Name, index: cs.nextBinder}
		cs.nextBinder++

		cs.walkChildren(node, func(i int) *scope {
			// The bound value / iterated collection is outside the binder's scope.
			if i == 0 {
				return env
			}

			return bound
		}, depth)
		cs.out.WriteByte(')')

	case m.NodeCall, m.NodeCond, m.NodeSeq:
		fmt.Fprintf(&cs.out, "(%s", node.Kind)
		cs.walkChildren(node, func(int) *scope { return env }, depth)
		cs.out.WriteByte(')')
	}
}

func (cs *canonState) walkChildren(node *m.Node, envFor func(int) *scope, depth int) {
	for i, child := range node.Children {
		cs.out.WriteByte(' ')
		cs.walk(child, envFor(i), depth+1)
	}
}

func (cs *canonState) writeIdent(name string, env *scope) {
	if index, ok := env.lookup(name); ok {
		fmt.Fprintf(&cs.out, "%%%d", index)
		return
	}

	index, seen := cs.freeIndex[name]
	if !seen {
		index = len(cs.freeIndex)
		cs.freeIndex[name] = index
		cs.slots = append(cs.slots, m.Slot{
			Kind:     m.SlotName,
			Name:     name,
			Captured: cs.enclosing[name],
		})
	}

	fmt.Fprintf(&cs.out, "$%d", index)
}
