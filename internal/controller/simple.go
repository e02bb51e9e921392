package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "refract.dev/pkg/refract/internal/model"
)

// SimpleUI implements UI using cobra Command's output stream.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	// SimpleUI doesn't block - it just prints and continues
}

// DisplayEstimation prints the candidate ranking or error.
func (s *SimpleUI) DisplayEstimation(ctx context.Context, candidates []m.Candidate, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		s.printf("estimation error: %v\n", err)
		return err
	}

	s.printf("\n%s", renderEstimationTable(candidates))

	return nil
}

func renderEstimationTable(candidates []m.Candidate) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Rank", "Occurrences", "Holes", "Savings", "Shape"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
	})

	totalSavings := 0

	for i, candidate := range candidates {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", len(candidate.Template.Occurrences)),
			fmt.Sprintf("%d", len(candidate.Template.Holes)),
			fmt.Sprintf("%d", candidate.Score),
			truncate(string(candidate.Template.Sig), 48),
		})

		totalSavings += candidate.Score
	}

	table.SetFooter([]string{
		fmt.Sprintf("Candidates %d", len(candidates)),
		"", "",
		fmt.Sprintf("%d", totalSavings),
		"",
	})

	table.Render()

	return tableBuffer.String()
}

// DisplayConcurrencyInfo shows concurrency settings.
func (s *SimpleUI) DisplayConcurrencyInfo(ctx context.Context, threads int, programs int) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Mining %d program(s) with %d worker(s)\n", programs, threads)
}

// DisplayReport prints the run report: abstractions, per-program results
// and totals.
func (s *SimpleUI) DisplayReport(ctx context.Context, report *m.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\nRun %s\n", report.RunID)
	s.printf("\n%s", renderAbstractionTable(report.Abstractions))
	s.printf("\n%s", renderProgramTable(report.Programs))

	for _, group := range report.CloneGroups {
		s.printf("Clone group: %s\n", strings.Join(group, ", "))
	}

	for _, program := range report.Programs {
		if program.Validation == m.ValidationFailed && program.Diff != "" {
			s.printf("\nValidation diff for %s:\n%s\n", program.ID, program.Diff)
		}
	}

	before, after := corpusNodeTotals(report)
	s.printf("\nCorpus: %d -> %d node(s) (%.1f%% smaller)\n", before, after, percentSmaller(before, after))
	s.printf("Total savings: %d node(s)\n", report.TotalSavings)

	return nil
}

func corpusNodeTotals(report *m.Report) (int, int) {
	before, after := 0, 0

	for _, program := range report.Programs {
		before += program.NodesBefore
		after += program.NodesAfter
	}

	return before, after
}

func percentSmaller(before, after int) float64 {
	if before == 0 {
		return 0
	}

	return 100 * float64(before-after) / float64(before)
}

func renderAbstractionTable(abstractions []m.AbstractionReport) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Name", "Params", "Occurrences", "Savings", "Status"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, abstraction := range abstractions {
		status := string(abstraction.Status)
		if abstraction.Reason != "" {
			status = fmt.Sprintf("%s (%s)", status, abstraction.Reason)
		}

		table.Append([]string{
			abstraction.Name,
			strings.Join(abstraction.Params, " "),
			fmt.Sprintf("%d", abstraction.Occurrences),
			fmt.Sprintf("%d", abstraction.NetSavings),
			status,
		})
	}

	table.Render()

	return tableBuffer.String()
}

func renderProgramTable(programs []m.ProgramReport) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Program", "Before", "After", "Invokes", "Validation"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, program := range programs {
		table.Append([]string{
			program.ID,
			fmt.Sprintf("%d", program.NodesBefore),
			fmt.Sprintf("%d", program.NodesAfter),
			strings.Join(program.Invokes, " "),
			string(program.Validation),
		})
	}

	table.Render()

	return tableBuffer.String()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	return text[:limit-3] + "..."
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
