package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	m "refract.dev/pkg/refract/internal/model"
)

func TestBuildAbstractionsNamingAndBody(t *testing.T) {
	occurrences := []m.Occurrence{
		occurrenceAt("a", []int{0}, call(ident("clamp"), ident("v"), num("1"), num("10")), nil),
		occurrenceAt("b", []int{0}, call(ident("clamp"), ident("v"), num("2"), num("10")), nil),
	}

	templates := Generalize(occurrences, miningDefaults())
	require.Len(t, templates, 1)

	selection := m.Selection{Picked: []m.Candidate{{Template: templates[0], Score: 1}}}
	abstractions := BuildAbstractions(selection, 0)

	require.Len(t, abstractions, 1)
	require.Equal(t, "fn_1", abstractions[0].Name)
	require.Equal(t, []string{"x0"}, abstractions[0].Params)

	// The body carries a parameter reference where the hole was.
	body := abstractions[0].Body
	require.Equal(t, m.NodeCall, body.Kind)
	require.Equal(t, m.NodeIdent, body.Children[2].Kind)
	require.Equal(t, "x0", body.Children[2].Name)
}

func TestBuildAbstractionsNumbersFromOffset(t *testing.T) {
	template := &m.Template{
		Sig:   "sig",
		Shape: call(ident("f"), &m.Node{Kind: m.NodeHole, Value: "0"}),
		Holes: []m.Hole{{Kind: m.HoleExpr}},
	}

	selection := m.Selection{Picked: []m.Candidate{{Template: template, Score: 1}}}
	abstractions := BuildAbstractions(selection, 2)

	require.Len(t, abstractions, 1)
	require.Equal(t, "fn_3", abstractions[0].Name)
}

func TestBuildAbstractionsBareHoleBody(t *testing.T) {
	template := &m.Template{
		Sig:   "sig",
		Shape: &m.Node{Kind: m.NodeHole, Value: "0"},
		Holes: []m.Hole{{Kind: m.HoleExpr}},
	}

	selection := m.Selection{Picked: []m.Candidate{{Template: template, Score: 1}}}
	abstractions := BuildAbstractions(selection, 0)

	require.Len(t, abstractions, 1)
	require.Equal(t, m.NodeIdent, abstractions[0].Body.Kind)
	require.Equal(t, "x0", abstractions[0].Body.Name)
}

func TestRewriteReplacesOccurrencesWithCalls(t *testing.T) {
	programA := &m.Program{ID: "a", Roots: []*m.Node{
		seq(
			call(ident("clamp"), ident("v"), num("1"), num("10")),
			call(ident("other")),
		),
	}}
	programB := &m.Program{ID: "b", Roots: []*m.Node{
		seq(call(ident("clamp"), ident("v"), num("2"), num("10"))),
	}}

	occurrences := []m.Occurrence{
		occurrenceAt("a", []int{0, 0}, programA.Roots[0].Children[0], nil),
		occurrenceAt("b", []int{0, 0}, programB.Roots[0].Children[0], nil),
	}

	templates := Generalize(occurrences, miningDefaults())
	require.Len(t, templates, 1)

	selection := m.Selection{Picked: []m.Candidate{{Template: templates[0], Score: 1}}}
	abstractions := BuildAbstractions(selection, 0)

	rewritten, err := Rewrite(context.Background(), []*m.Program{programA, programB}, abstractions, 2)
	require.NoError(t, err)

	// Originals stay untouched.
	require.Equal(t, "clamp", programA.Roots[0].Children[0].Children[0].Name)

	site := rewritten[0].Roots[0].Children[0]
	require.Equal(t, m.NodeCall, site.Kind)
	require.Len(t, site.Children, 2)
	require.Equal(t, "fn_1", site.Children[0].Name)
	require.Equal(t, "1", site.Children[1].Value)

	siteB := rewritten[1].Roots[0].Children[0]
	require.Equal(t, "fn_1", siteB.Children[0].Name)
	require.Equal(t, "2", siteB.Children[1].Value)

	// Untouched statements survive the rewrite.
	require.Equal(t, "other", rewritten[0].Roots[0].Children[1].Children[0].Name)
}

func TestRewriteBottomUpKeepsDeepPositionsValid(t *testing.T) {
	deep := call(ident("inner"), ident("v"), num("1"))
	program := &m.Program{ID: "a", Roots: []*m.Node{
		seq(
			call(ident("outer"), deep, num("0")),
			call(ident("inner"), ident("v"), num("2")),
		),
	}}

	occurrences := []m.Occurrence{
		occurrenceAt("a", []int{0, 0, 1}, deep, nil),
		occurrenceAt("a", []int{0, 1}, program.Roots[0].Children[1], nil),
	}

	templates := Generalize(occurrences, miningDefaults())
	require.Len(t, templates, 1)

	selection := m.Selection{Picked: []m.Candidate{{Template: templates[0], Score: 1}}}
	abstractions := BuildAbstractions(selection, 0)

	rewritten, err := Rewrite(context.Background(), []*m.Program{program}, abstractions, 1)
	require.NoError(t, err)

	nested := rewritten[0].Roots[0].Children[0].Children[1]
	require.Equal(t, "fn_1", nested.Children[0].Name)

	shallow := rewritten[0].Roots[0].Children[1]
	require.Equal(t, "fn_1", shallow.Children[0].Name)
}

func TestRewriteMissingFillFails(t *testing.T) {
	template := &m.Template{
		Sig:   "sig",
		Shape: call(ident("f"), &m.Node{Kind: m.NodeHole, Value: "0"}),
		Holes: []m.Hole{{Kind: m.HoleExpr}},
		Occurrences: []m.BoundOccurrence{{
			Occurrence: m.Occurrence{ProgramID: "a", Pos: m.Position{ProgramID: "a", Path: []int{0}}},
			Fills:      []*m.Node{nil},
		}},
	}

	program := &m.Program{ID: "a", Roots: []*m.Node{call(ident("f"), num("1"))}}
	selection := m.Selection{Picked: []m.Candidate{{Template: template, Score: 1}}}

	_, err := Rewrite(context.Background(), []*m.Program{program}, BuildAbstractions(selection, 0), 1)
	require.Error(t, err)
}
