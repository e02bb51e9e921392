package domain

import (
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	m "refract.dev/pkg/refract/internal/model"
)

func TestCanonicalizeBinderRenamingInvariance(t *testing.T) {
	a := let("x", num("1"), call(ident("print"), ident("x")))
	b := let("y", num("1"), call(ident("print"), ident("y")))

	sigA, _ := Canonicalize(a, nil)
	sigB, _ := Canonicalize(b, nil)

	require.Equal(t, sigA, sigB)
}

func TestCanonicalizeLiteralSpellingAbstracted(t *testing.T) {
	a := call(ident("plus"), ident("x"), num("1"))
	b := call(ident("plus"), ident("x"), num("42"))

	sigA, _ := Canonicalize(a, nil)
	sigB, _ := Canonicalize(b, nil)

	require.Equal(t, sigA, sigB)

	// Different literal kinds must not collide.
	c := call(ident("plus"), ident("x"), str("1"))
	sigC, _ := Canonicalize(c, nil)
	require.NotEqual(t, sigA, sigC)
}

func TestCanonicalizeFreeIdentPositions(t *testing.T) {
	a := call(ident("f"), ident("g"), ident("f"))
	b := call(ident("p"), ident("q"), ident("p"))
	c := call(ident("p"), ident("q"), ident("q"))

	sigA, _ := Canonicalize(a, nil)
	sigB, _ := Canonicalize(b, nil)
	sigC, _ := Canonicalize(c, nil)

	require.Equal(t, sigA, sigB)
	require.NotEqual(t, sigA, sigC)
}

func TestCanonicalizeFreeVersusBoundDistinct(t *testing.T) {
	bound := lam([]string{"x"}, call(ident("print"), ident("x")))
	free := lam([]string{"y"}, call(ident("print"), ident("x")))

	sigBound, _ := Canonicalize(bound, nil)
	sigFree, _ := Canonicalize(free, nil)

	require.NotEqual(t, sigBound, sigFree)
}

func TestCanonicalizeDeterministic(t *testing.T) {
	tree := let("acc", num("0"),
		lam([]string{"item"}, call(ident("push"), ident("acc"), ident("item"))))

	first, firstSlots := Canonicalize(tree, nil)

	for i := 0; i < 5; i++ {
		again, againSlots := Canonicalize(tree, nil)
		require.Equal(t, first, again)
		require.Equal(t, firstSlots, againSlots)
	}
}

func TestCanonicalizeSlots(t *testing.T) {
	tree := call(ident("plus"), ident("x"), num("7"))

	_, slots := Canonicalize(tree, map[string]bool{"x": true})

	require.Len(t, slots, 3)
	require.Equal(t, m.SlotName, slots[0].Kind)
	require.Equal(t, "plus", slots[0].Name)
	require.False(t, slots[0].Captured)
	require.Equal(t, "x", slots[1].Name)
	require.True(t, slots[1].Captured)
	require.Equal(t, m.SlotLiteral, slots[2].Kind)
	require.Equal(t, "7", slots[2].Value)
}

func TestCanonicalizeLetValueOutsideBinderScope(t *testing.T) {
	// In (let x x body) the bound value's x refers to an outer x.
	shadowing := let("x", ident("x"), ident("x"))
	sig, _ := Canonicalize(shadowing, nil)

	// First x is free ($0), second is the binder reference (%0).
	require.Equal(t, m.Signature("(let $0 %0)"), sig)
}

func TestSkeletonSignatureTruncates(t *testing.T) {
	a := call(ident("f"), call(ident("g"), num("1")))
	b := call(ident("f"), call(ident("h"), str("deep")))

	require.NotEqual(t, mustSig(a), mustSig(b))
	require.Equal(t, SkeletonSignature(a, 2), SkeletonSignature(b, 2))
	require.NotEqual(t, SkeletonSignature(a, 3), SkeletonSignature(b, 3))
}

func mustSig(node *m.Node) m.Signature {
	sig, _ := Canonicalize(node, nil)
	return sig
}

var genNames = []string{"alpha", "beta", "gamma", "delta", "omega"}

func randomTree(rng *rand.Rand, depth int) *m.Node {
	if depth >= 3 || rng.Intn(3) == 0 {
		switch rng.Intn(4) {
		case 0:
			return num(strconv.Itoa(rng.Intn(100)))
		case 1:
			return str("s" + strconv.Itoa(rng.Intn(100)))
		case 2:
			return &m.Node{Kind: m.NodeLiteral, Lit: m.LitBool, Value: "true"}
		default:
			return ident(genNames[rng.Intn(len(genNames))])
		}
	}

	pick := func() *m.Node { return randomTree(rng, depth+1) }

	switch rng.Intn(6) {
	case 0:
		children := []*m.Node{ident(genNames[rng.Intn(len(genNames))])}
		for n := rng.Intn(3) + 1; n > 0; n-- {
			children = append(children, pick())
		}

		return &m.Node{Kind: m.NodeCall, Children: children}

	case 1:
		return &m.Node{Kind: m.NodeCond, Children: []*m.Node{pick(), pick(), pick()}}

	case 2:
		children := []*m.Node{pick()}
		for n := rng.Intn(2) + 1; n > 0; n-- {
			children = append(children, pick())
		}

		return &m.Node{Kind: m.NodeSeq, Children: children}

	case 3:
		return &m.Node{Kind: m.NodeLet, Name: genNames[rng.Intn(len(genNames))], Children: []*m.Node{pick(), pick()}}

	case 4:
		return &m.Node{Kind: m.NodeLoop, Name: genNames[rng.Intn(len(genNames))], Children: []*m.Node{pick(), pick()}}

	default:
		params := []string{genNames[rng.Intn(len(genNames))]}
		if rng.Intn(2) == 0 {
			params = append(params, genNames[rng.Intn(len(genNames))])
		}

		return &m.Node{Kind: m.NodeLambda, Params: params, Children: []*m.Node{pick()}}
	}
}

// renameBinders rebuilds the tree with every binder renamed to a fresh
// name, rewriting the identifier uses it governs. Free identifiers and
// uses outside a binder's scope keep their original names.
func renameBinders(node *m.Node, env map[string]string, next *int) *m.Node {
	fresh := func() string {
		*next++
		return fmt.Sprintf("renamed%d", *next)
	}

	switch node.Kind {
	case m.NodeIdent:
		if renamed, ok := env[node.Name]; ok {
			return ident(renamed)
		}

		return ident(node.Name)

	case m.NodeLiteral:
		return &m.Node{Kind: m.NodeLiteral, Lit: node.Lit, Value: node.Value + "x"}

	case m.NodeLambda:
		inner := copyEnv(env)

		params := make([]string, len(node.Params))
		for i, param := range node.Params {
			params[i] = fresh()
			inner[param] = params[i]
		}

		out := &m.Node{Kind: m.NodeLambda, Params: params}
		for _, child := range node.Children {
			out.Children = append(out.Children, renameBinders(child, inner, next))
		}

		return out

	case m.NodeLet, m.NodeLoop:
		renamed := fresh()
		inner := copyEnv(env)
		inner[node.Name] = renamed

		out := &m.Node{Kind: node.Kind, Name: renamed}

		for i, child := range node.Children {
			childEnv := inner
			if i == 0 {
				childEnv = env
			}

			out.Children = append(out.Children, renameBinders(child, childEnv, next))
		}

		return out

	default:
		out := &m.Node{Kind: node.Kind}
		for _, child := range node.Children {
			out.Children = append(out.Children, renameBinders(child, env, next))
		}

		return out
	}
}

func copyEnv(env map[string]string) map[string]string {
	copied := make(map[string]string, len(env))
	for name, renamed := range env {
		copied[name] = renamed
	}

	return copied
}

func flipFirstLiteral(node *m.Node) bool {
	if node.Kind == m.NodeLiteral {
		if node.Lit == m.LitNumber {
			node.Lit = m.LitString
		} else {
			node.Lit = m.LitNumber
		}

		return true
	}

	for _, child := range node.Children {
		if flipFirstLiteral(child) {
			return true
		}
	}

	return false
}

func TestCanonicalizeRenamingInvarianceRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 300; i++ {
		tree := randomTree(rng, 0)

		next := 0
		renamed := renameBinders(tree, map[string]string{}, &next)

		sigA, _ := Canonicalize(tree, nil)
		sigB, _ := Canonicalize(renamed, nil)
		require.Equal(t, sigA, sigB, "tree %d", i)
	}
}

func TestCanonicalizeStructureSensitivityRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(13))

	for i := 0; i < 300; i++ {
		tree := randomTree(rng, 0)
		sig, _ := Canonicalize(tree, nil)

		wrappedSig, _ := Canonicalize(seq(tree.Clone()), nil)
		require.NotEqual(t, sig, wrappedSig, "tree %d", i)

		mutated := tree.Clone()
		if flipFirstLiteral(mutated) {
			mutatedSig, _ := Canonicalize(mutated, nil)
			require.NotEqual(t, sig, mutatedSig, "tree %d", i)
		}
	}
}
