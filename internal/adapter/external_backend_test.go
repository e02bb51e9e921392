package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

func externalConfig() domain.MineConfig {
	return domain.MineConfig{MinFrequency: 2, MinSize: 3, MaxSize: 20, MaxHoles: 3, SkeletonDepth: 2, Threads: 1}
}

func parsedProgram(t *testing.T, id, source string) *m.Program {
	t.Helper()

	forest, err := NewSexprParser().Parse(context.Background(), source)
	require.NoError(t, err)

	return &m.Program{ID: id, Roots: forest}
}

func clampPrograms(t *testing.T) []*m.Program {
	t.Helper()

	return []*m.Program{
		parsedProgram(t, "a", "(clamp v 1 10)"),
		parsedProgram(t, "b", "(clamp v 2 10)"),
		parsedProgram(t, "c", "(clamp v 3 10)"),
	}
}

func responseBackend(response string) *ExternalBackend {
	command := []string{"sh", "-c", "cat - >/dev/null; printf %s " + "'" + response + "'"}
	return NewExternalBackend(command, NewSexprParser(), NewSexprPrinter())
}

func TestMarkHolesConvertsMarkers(t *testing.T) {
	forest, err := NewSexprParser().Parse(context.Background(), "(clamp v $0 10)")
	require.NoError(t, err)

	shape, err := markHoles(forest[0], 1)
	require.NoError(t, err)
	require.Equal(t, m.NodeHole, shape.Children[2].Kind)
	require.Equal(t, "0", shape.Children[2].Value)

	// The input tree keeps its ident.
	require.Equal(t, m.NodeIdent, forest[0].Children[2].Kind)
}

func TestMarkHolesErrors(t *testing.T) {
	parse := func(source string) *m.Node {
		forest, err := NewSexprParser().Parse(context.Background(), source)
		require.NoError(t, err)

		return forest[0]
	}

	_, err := markHoles(parse("(clamp v x 10)"), 1)
	require.ErrorContains(t, err, "never appears")

	_, err = markHoles(parse("(clamp v $1 10)"), 1)
	require.ErrorContains(t, err, "exceeds declared arity")

	_, err = markHoles(parse("(clamp v $x 10)"), 1)
	require.ErrorContains(t, err, "malformed hole marker")

	_, err = markHoles(parse("$0"), 1)
	require.ErrorContains(t, err, "bare hole")
}

func TestExternalDiscoverTranslatesAbstractions(t *testing.T) {
	backend := responseBackend(`{"abstractions":[{"arity":1,"body":"(clamp v $0 10)"}]}`)

	candidates, err := backend.Discover(context.Background(), clampPrograms(t), externalConfig())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	candidate := candidates[0]
	require.Equal(t, 6, candidate.Score)
	require.Len(t, candidate.Template.Holes, 1)
	require.Len(t, candidate.Template.Occurrences, 3)
	require.Equal(t, "a", candidate.Template.Occurrences[0].ProgramID)
	require.Equal(t, "1", candidate.Template.Occurrences[0].Fills[0].Value)
}

func TestExternalDiscoverDropsUnmatchedBodies(t *testing.T) {
	backend := responseBackend(`{"abstractions":[{"arity":1,"body":"(absent w $0 10)"}]}`)

	candidates, err := backend.Discover(context.Background(), clampPrograms(t), externalConfig())
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestExternalDiscoverRejectsMalformedBody(t *testing.T) {
	backend := responseBackend(`{"abstractions":[{"arity":1,"body":"(clamp v $3 10)"}]}`)

	_, err := backend.Discover(context.Background(), clampPrograms(t), externalConfig())
	require.ErrorContains(t, err, "exceeds declared arity")
}

func TestExternalDiscoverCommandFailure(t *testing.T) {
	backend := NewExternalBackend([]string{"sh", "-c", "exit 7"}, NewSexprParser(), NewSexprPrinter())

	_, err := backend.Discover(context.Background(), clampPrograms(t), externalConfig())
	require.ErrorContains(t, err, "external backend failed")
}

func TestExternalDiscoverRequiresCommand(t *testing.T) {
	backend := NewExternalBackend(nil, NewSexprParser(), NewSexprPrinter())

	_, err := backend.Discover(context.Background(), clampPrograms(t), externalConfig())
	require.Error(t, err)
}
