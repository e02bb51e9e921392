package domain

import (
	"fmt"
	"strconv"

	m "refract.dev/pkg/refract/internal/model"
)

// protoTemplate is a generalization group under construction: the
// current unified shape (NodeHole markers stand where members differ),
// the holes by id, and each member's fills aligned to the hole ids.
type protoTemplate struct {
	shape     *m.Node
	holes     []m.Hole
	holePaths [][]int
	members   []m.Occurrence
	fills     [][]*m.Node
}

// errSplit signals that an occurrence cannot join a group and must be
// unified elsewhere; it is never surfaced to callers.
var errSplit = fmt.Errorf("occurrence cannot unify with group")

// Generalize unifies the occurrences of one index group into zero or
// more templates. Occurrences are walked in index order; each one joins
// the first group it unifies with, so occurrences that cannot follow the
// majority split into separate templates deterministically. Groups below
// the minimum frequency or above the hole budget are dropped.
func Generalize(occurrences []m.Occurrence, cfg MineConfig) []*m.Template {
	groups := []*protoTemplate{}

	for _, occ := range occurrences {
		joined := false

		for _, group := range groups {
			if err := group.merge(occ); err == nil {
				joined = true
				break
			}
		}

		if !joined {
			groups = append(groups, newProtoTemplate(occ))
		}
	}

	templates := []*m.Template{}

	for _, group := range groups {
		if len(group.members) < cfg.MinFrequency {
			continue
		}

		group.coalesceHoles()
		group.renumberHoles()

		if len(group.holes) > cfg.MaxHoles {
			continue
		}

		sig, _ := Canonicalize(group.shape, nil)

		bound := make([]m.BoundOccurrence, len(group.members))
		for i, member := range group.members {
			bound[i] = m.BoundOccurrence{Occurrence: member, Fills: group.fills[i]}
		}

		templates = append(templates, &m.Template{
			Sig:         sig,
			Shape:       group.shape,
			Holes:       group.holes,
			Occurrences: bound,
		})
	}

	return templates
}

func newProtoTemplate(occ m.Occurrence) *protoTemplate {
	return &protoTemplate{
		shape:   occ.Node.Clone(),
		members: []m.Occurrence{occ},
		fills:   [][]*m.Node{nil},
	}
}

// mergeEdits accumulates the changes a successful merge would apply, so
// a failed merge leaves the group untouched.
type mergeEdits struct {
	newHoles      []newHole
	fillsExisting map[int]*m.Node
	widen         map[int]m.HoleKind
}

type newHole struct {
	path []int
	kind m.HoleKind
	lit  m.LiteralKind
}

// merge attempts to unify one occurrence into the group, creating or
// widening holes where the occurrence diverges from the shape. On any
// constraint violation the group is left unchanged and errSplit is
// returned.
func (pt *protoTemplate) merge(occ m.Occurrence) error {
	edits := &mergeEdits{
		fillsExisting: map[int]*m.Node{},
		widen:         map[int]m.HoleKind{},
	}

	walker := &mergeWalker{group: pt, occ: occ, edits: edits}
	if err := walker.walk(pt.shape, occ.Node, nil, nil, nil, m.NodeSeq); err != nil {
		return err
	}

	pt.apply(occ, edits)

	return nil
}

type mergeWalker struct {
	group      *protoTemplate
	occ        m.Occurrence
	edits      *mergeEdits
	nextBinder int
}

// walk compares the shape and the occurrence subtree in lockstep.
// shapeEnv and occEnv map each side's binder names to shared positional
// indices; parentKind distinguishes statement positions, which can never
// generalize into holes.
func (mw *mergeWalker) walk(shape, node *m.Node, path []int, shapeEnv, occEnv *scope, parentKind m.NodeKind) error {
	if shape.Kind == m.NodeHole {
		return mw.fillExistingHole(shape, node, occEnv)
	}

	if shape.Kind != node.Kind {
		return mw.diverge(shape, node, path, occEnv, parentKind)
	}

	switch shape.Kind {
	case m.NodeIdent:
		if mw.identsAgree(shape, node, shapeEnv, occEnv) {
			return nil
		}

		return mw.diverge(shape, node, path, occEnv, parentKind)

	case m.NodeLiteral:
		if shape.Lit == node.Lit && shape.Value == node.Value {
			return nil
		}

		return mw.diverge(shape, node, path, occEnv, parentKind)

	case m.NodeLambda:
		if len(shape.Params) != len(node.Params) || len(shape.Children) != len(node.Children) {
			return mw.diverge(shape, node, path, occEnv, parentKind)
		}

		for i := range shape.Params {
			shapeEnv = &scope{parent: shapeEnv, name: shape.Params[i], index: mw.nextBinder}
			occEnv = &scope{parent: occEnv, name: node.Params[i], index: mw.nextBinder}
			mw.nextBinder++
		}

		return mw.walkChildren(shape, node, path, func(int) (*scope, *scope) { return shapeEnv, occEnv })

	case m.NodeLet, m.NodeLoop:
		if len(shape.Children) != len(node.Children) {
			return mw.diverge(shape, node, path, occEnv, parentKind)
		}

		boundShape := &scope{parent: shapeEnv, name: shape.Name, index: mw.nextBinder}
		boundOcc := &scope{parent: occEnv, name: node.Name, index: mw.nextBinder}
		mw.nextBinder++

		return mw.walkChildren(shape, node, path, func(i int) (*scope, *scope) {
			if i == 0 {
				return shapeEnv, occEnv
			}

			return boundShape, boundOcc
		})

	default: // Call, Cond, Seq
		if len(shape.Children) != len(node.Children) {
			return mw.diverge(shape, node, path, occEnv, parentKind)
		}

		return mw.walkChildren(shape, node, path, func(int) (*scope, *scope) { return shapeEnv, occEnv })
	}
}

func (mw *mergeWalker) walkChildren(shape, node *m.Node, path []int, envsFor func(int) (*scope, *scope)) error {
	for i := range shape.Children {
		shapeEnv, occEnv := envsFor(i)

		childPath := append(append([]int(nil), path...), i)
		if err := mw.walk(shape.Children[i], node.Children[i], childPath, shapeEnv, occEnv, shape.Kind); err != nil {
			return err
		}
	}

	return nil
}

func (mw *mergeWalker) identsAgree(shape, node *m.Node, shapeEnv, occEnv *scope) bool {
	shapeIndex, shapeBound := shapeEnv.lookup(shape.Name)
	occIndex, occBound := occEnv.lookup(node.Name)

	if shapeBound != occBound {
		return false
	}

	if shapeBound {
		// Local binders are renaming-invariant; only the position matters.
		return shapeIndex == occIndex
	}

	return shape.Name == node.Name
}

// fillExistingHole validates the occurrence's subtree as a fill for an
// already-present hole, possibly widening the hole's category.
func (mw *mergeWalker) fillExistingHole(shape, node *m.Node, occEnv *scope) error {
	id, err := strconv.Atoi(shape.Value)
	if err != nil {
		return errSplit
	}

	kind, ok := fillCategory(node)
	if !ok {
		return errSplit
	}

	if err := checkSelfContained(node, occEnv.domain()); err != nil {
		return err
	}

	if !mw.group.captureConsistent(id, node, mw.occ) {
		return errSplit
	}

	current := mw.group.holes[id].Kind
	if widened, ok := mw.edits.widen[id]; ok {
		current = widened
	}

	mw.edits.widen[id] = joinHoleKinds(current, kind)
	mw.edits.fillsExisting[id] = node

	return nil
}

// diverge attempts to introduce a new hole at a position where the
// occurrence differs structurally from the fixed shape.
func (mw *mergeWalker) diverge(shape, node *m.Node, path []int, occEnv *scope, parentKind m.NodeKind) error {
	// A template that is nothing but a hole compresses nothing.
	if len(path) == 0 {
		return errSplit
	}

	// Statement positions cannot generalize into expression holes.
	if parentKind == m.NodeSeq {
		return errSplit
	}

	// Swallowing an existing hole into a wider one would orphan the
	// fills already recorded for it; send the occurrence elsewhere.
	if containsHole(shape) {
		return errSplit
	}

	shapeKind, ok := fillCategory(shape)
	if !ok {
		return errSplit
	}

	occKind, ok := fillCategory(node)
	if !ok {
		return errSplit
	}

	if err := checkSelfContained(node, occEnv.domain()); err != nil {
		return err
	}

	// Each existing member's concrete subtree at this position becomes
	// its fill; it must be self-contained for every one of them.
	occCaptures := capturedUse(node, mw.occ)

	for i, member := range mw.group.members {
		memberFill, err := nodeAt(member.Node, path)
		if err != nil {
			return errSplit
		}

		if err := checkSelfContained(memberFill, bindersAlong(member.Node, path)); err != nil {
			return err
		}

		if capturedUse(memberFill, mw.group.members[i]) != occCaptures {
			return errSplit
		}
	}

	hole := newHole{path: append([]int(nil), path...), kind: joinHoleKinds(shapeKind, occKind)}
	if hole.kind == m.HoleLiteral {
		hole.lit = shape.Lit
	}

	mw.edits.newHoles = append(mw.edits.newHoles, hole)

	return nil
}

// apply commits a successful merge: widens and fills existing holes,
// carves the new holes out of the shape, and records every member's
// fills for them.
func (pt *protoTemplate) apply(occ m.Occurrence, edits *mergeEdits) {
	for id, kind := range edits.widen {
		pt.holes[id].Kind = kind
	}

	occFills := make([]*m.Node, len(pt.holes))
	for id, fill := range edits.fillsExisting {
		occFills[id] = fill.Clone()
	}

	for _, hole := range edits.newHoles {
		id := len(pt.holes)
		pt.holes = append(pt.holes, m.Hole{Kind: hole.kind, Lit: hole.lit})
		pt.holePaths = append(pt.holePaths, hole.path)

		for i, member := range pt.members {
			memberFill, err := nodeAt(member.Node, hole.path)
			if err != nil {
				pt.fills[i] = append(pt.fills[i], nil)
				continue
			}

			pt.fills[i] = append(pt.fills[i], memberFill.Clone())
		}

		occFill, err := nodeAt(occ.Node, hole.path)
		if err == nil {
			occFills = append(occFills, occFill.Clone())
		} else {
			occFills = append(occFills, nil)
		}

		replaceAt(pt.shape, hole.path, &m.Node{Kind: m.NodeHole, Value: strconv.Itoa(id)})
	}

	pt.members = append(pt.members, occ)
	pt.fills = append(pt.fills, occFills)
}

// captureConsistent reports whether a prospective fill agrees with the
// existing fills of a hole on whether it references names bound outside
// the instantiation site. A hole may not capture an outer binding in
// some occurrences and not others.
func (pt *protoTemplate) captureConsistent(holeID int, fill *m.Node, occ m.Occurrence) bool {
	use := capturedUse(fill, occ)

	for i := range pt.members {
		if holeID >= len(pt.fills[i]) || pt.fills[i][holeID] == nil {
			continue
		}

		if capturedUse(pt.fills[i][holeID], pt.members[i]) != use {
			return false
		}
	}

	return true
}

// coalesceHoles merges holes whose fills are identical across every
// member; they denote the same parameter.
func (pt *protoTemplate) coalesceHoles() {
	for i := 0; i < len(pt.holes); i++ {
		for j := i + 1; j < len(pt.holes); j++ {
			if !pt.holesAlias(i, j) {
				continue
			}

			rewriteHoleIDs(pt.shape, j, i)

			for k := range pt.fills {
				pt.fills[k][j] = nil
			}
		}
	}
}

func (pt *protoTemplate) holesAlias(i, j int) bool {
	for k := range pt.members {
		a, b := pt.fills[k][i], pt.fills[k][j]
		if a == nil || b == nil || !equalNodes(a, b) {
			return false
		}
	}

	return true
}

// renumberHoles assigns hole ids in preorder of the shape (the
// canonical hole order) and compacts coalesced slots out of the fills.
func (pt *protoTemplate) renumberHoles() {
	order := []int{}
	seen := map[int]bool{}

	var visit func(node *m.Node)
	visit = func(node *m.Node) {
		if node.Kind == m.NodeHole {
			if id, err := strconv.Atoi(node.Value); err == nil && !seen[id] {
				seen[id] = true
				order = append(order, id)
			}

			return
		}

		for _, child := range node.Children {
			visit(child)
		}
	}
	visit(pt.shape)

	remap := map[int]int{}
	holes := make([]m.Hole, len(order))

	for newID, oldID := range order {
		remap[oldID] = newID
		holes[newID] = pt.holes[oldID]
	}

	var apply func(node *m.Node)
	apply = func(node *m.Node) {
		if node.Kind == m.NodeHole {
			if id, err := strconv.Atoi(node.Value); err == nil {
				node.Value = strconv.Itoa(remap[id])
			}

			return
		}

		for _, child := range node.Children {
			apply(child)
		}
	}
	apply(pt.shape)

	for k := range pt.fills {
		compact := make([]*m.Node, len(order))
		for newID, oldID := range order {
			compact[newID] = pt.fills[k][oldID]
		}

		pt.fills[k] = compact
	}

	pt.holes = holes
}

// fillCategory classifies a subtree as a hole fill. Binding and
// statement forms are not self-contained expressions and can never fill
// a hole.
func fillCategory(node *m.Node) (m.HoleKind, bool) {
	switch node.Kind {
	case m.NodeIdent:
		return m.HoleName, true
	case m.NodeLiteral:
		return m.HoleLiteral, true
	case m.NodeCall, m.NodeCond, m.NodeLambda:
		return m.HoleExpr, true
	default:
		return 0, false
	}
}

func joinHoleKinds(a, b m.HoleKind) m.HoleKind {
	if a == b {
		return a
	}

	return m.HoleExpr
}

// checkSelfContained rejects fills that reference a binder introduced
// inside the template region: such an argument would evaluate outside
// the binder's scope at the call site.
func checkSelfContained(fill *m.Node, pathBinders map[string]bool) error {
	for name := range freeIdents(fill) {
		if pathBinders[name] {
			return errSplit
		}
	}

	return nil
}

// capturedUse reports whether a fill references at least one name bound
// by a binder enclosing the occurrence in its program.
func capturedUse(fill *m.Node, occ m.Occurrence) bool {
	for name := range freeIdents(fill) {
		for _, slot := range occ.Slots {
			if slot.Kind == m.SlotName && slot.Name == name && slot.Captured {
				return true
			}
		}
	}

	return false
}

func (s *scope) domain() map[string]bool {
	names := map[string]bool{}
	for cur := s; cur != nil; cur = cur.parent {
		names[cur.name] = true
	}

	return names
}

// freeIdents collects identifier names referenced but not bound within
// the subtree.
func freeIdents(node *m.Node) map[string]bool {
	free := map[string]bool{}

	var visit func(n *m.Node, env *scope)
	visit = func(n *m.Node, env *scope) {
		switch n.Kind {
		case m.NodeIdent:
			if _, bound := env.lookup(n.Name); !bound {
				free[n.Name] = true
			}

		case m.NodeLambda:
			inner := env
			for _, param := range n.Params {
				inner = &scope{parent: inner, name: param}
			}

			for _, child := range n.Children {
				visit(child, inner)
			}

		case m.NodeLet, m.NodeLoop:
			bound := &scope{parent: env, name: n.Name}

			for i, child := range n.Children {
				if i == 0 {
					visit(child, env)
				} else {
					visit(child, bound)
				}
			}

		default:
			for _, child := range n.Children {
				visit(child, env)
			}
		}
	}
	visit(node, nil)

	return free
}

// bindersAlong collects the binder names introduced on the path from a
// subtree root down to (but excluding) the node the path addresses.
func bindersAlong(root *m.Node, path []int) map[string]bool {
	binders := map[string]bool{}
	node := root

	for _, step := range path {
		if step < 0 || step >= len(node.Children) {
			return binders
		}

		for _, name := range node.Binders(step) {
			binders[name] = true
		}

		node = node.Children[step]
	}

	return binders
}

func nodeAt(root *m.Node, path []int) (*m.Node, error) {
	node := root

	for _, step := range path {
		if step < 0 || step >= len(node.Children) {
			return nil, fmt.Errorf("path step %d out of range", step)
		}

		node = node.Children[step]
	}

	return node, nil
}

func replaceAt(root *m.Node, path []int, replacement *m.Node) {
	if len(path) == 0 {
		return
	}

	parent, err := nodeAt(root, path[:len(path)-1])
	if err != nil {
		return
	}

	last := path[len(path)-1]
	if last >= 0 && last < len(parent.Children) {
		parent.Children[last] = replacement
	}
}

func containsHole(node *m.Node) bool {
	if node.Kind == m.NodeHole {
		return true
	}

	for _, child := range node.Children {
		if containsHole(child) {
			return true
		}
	}

	return false
}

// equalNodes reports exact structural equality, concrete names and
// spellings included.
func equalNodes(a, b *m.Node) bool {
	if a.Kind != b.Kind || a.Name != b.Name || a.Lit != b.Lit || a.Value != b.Value {
		return false
	}

	if len(a.Params) != len(b.Params) || len(a.Children) != len(b.Children) {
		return false
	}

	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}

	for i := range a.Children {
		if !equalNodes(a.Children[i], b.Children[i]) {
			return false
		}
	}

	return true
}

func rewriteHoleIDs(node *m.Node, from, to int) {
	if node.Kind == m.NodeHole {
		if id, err := strconv.Atoi(node.Value); err == nil && id == from {
			node.Value = strconv.Itoa(to)
		}

		return
	}

	for _, child := range node.Children {
		rewriteHoleIDs(child, from, to)
	}
}
