package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	m "refract.dev/pkg/refract/internal/model"
)

func simpleFixture() (*SimpleUI, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buffer)

	return NewSimpleUI(cmd), buffer
}

func fixtureCandidates() []m.Candidate {
	return []m.Candidate{
		{
			Template: &m.Template{
				Sig:         "(call $0 ?0 #num)",
				Holes:       []m.Hole{{Kind: m.HoleExpr}},
				Occurrences: []m.BoundOccurrence{{}, {}, {}},
			},
			Score: 6,
		},
		{
			Template: &m.Template{
				Sig:         "(call $0 $1)",
				Occurrences: []m.BoundOccurrence{{}, {}},
			},
			Score: 2,
		},
	}
}

func fixtureReport() *m.Report {
	return &m.Report{
		RunID:  "run-7",
		Corpus: m.CorpusStats{Programs: 2, TotalNodes: 10},
		Abstractions: []m.AbstractionReport{
			{Name: "fn_1", Params: []string{"x0"}, Occurrences: 3, NetSavings: 6, Status: m.AbstractionAccepted},
			{Name: "fn_2", Occurrences: 2, Status: m.AbstractionRejected, Reason: "behavior mismatch on validation"},
		},
		Programs: []m.ProgramReport{
			{ID: "a", NodesBefore: 5, NodesAfter: 3, Invokes: []string{"fn_1"}, Validation: m.ValidationPassed},
			{ID: "b", NodesBefore: 5, NodesAfter: 5, Validation: m.ValidationFailed, Diff: "-before\n+after"},
		},
		CloneGroups:  [][]string{{"a", "b"}},
		TotalSavings: 6,
	}
}

func TestSimpleUIDisplayEstimation(t *testing.T) {
	ui, buffer := simpleFixture()

	require.NoError(t, ui.DisplayEstimation(context.Background(), fixtureCandidates(), nil))

	output := buffer.String()
	require.Contains(t, output, "RANK")
	require.Contains(t, output, "(call $0 ?0 #num)")
	require.Contains(t, output, "CANDIDATES 2")
	require.Contains(t, output, "8")
}

func TestSimpleUIDisplayEstimationError(t *testing.T) {
	ui, buffer := simpleFixture()

	failure := errors.New("no corpus")
	require.ErrorIs(t, ui.DisplayEstimation(context.Background(), nil, failure), failure)
	require.Contains(t, buffer.String(), "no corpus")
}

func TestSimpleUIDisplayReport(t *testing.T) {
	ui, buffer := simpleFixture()

	require.NoError(t, ui.DisplayReport(context.Background(), fixtureReport()))

	output := buffer.String()
	require.Contains(t, output, "Run run-7")
	require.Contains(t, output, "fn_1")
	require.Contains(t, output, "rejected (behavior mismatch on validation)")
	require.Contains(t, output, "Clone group: a, b")
	require.Contains(t, output, "Validation diff for b:")
	require.Contains(t, output, "Corpus: 10 -> 8 node(s) (20.0% smaller)")
	require.Contains(t, output, "Total savings: 6 node(s)")
}

func TestSimpleUIDisplayConcurrencyInfo(t *testing.T) {
	ui, buffer := simpleFixture()

	ui.DisplayConcurrencyInfo(context.Background(), 4, 9)
	require.Equal(t, "Mining 9 program(s) with 4 worker(s)\n", buffer.String())
}

func TestSimpleUIHonorsCancelledContext(t *testing.T) {
	ui, buffer := simpleFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, ui.Start(ctx))
	require.Error(t, ui.DisplayReport(ctx, fixtureReport()))
	require.Empty(t, buffer.String())
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "exactly-10", truncate("exactly-10", 10))
	require.Equal(t, "much to...", truncate("much too long here", 10))
}
