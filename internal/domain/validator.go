package domain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	m "refract.dev/pkg/refract/internal/model"
)

// Oracle is the behavioral equivalence checker: given a program
// rendered to source it returns the observable output on its recorded
// inputs, or an error when execution fails or times out.
type Oracle interface {
	Evaluate(ctx context.Context, programID, source string) (string, error)
}

// Printer converts a finalized Program plus emitted abstraction
// definitions back into source text.
type Printer interface {
	Render(program *m.Program, abstractions []m.Abstraction) (string, error)
}

// programVerdict is the validation outcome for one program.
type programVerdict struct {
	programID string
	status    m.ValidationStatus
	diff      string
}

// validateCorpus executes each original program and its rewritten
// counterpart on the oracle and compares observable output. Programs
// validate in parallel, each execution bounded by the per-program
// timeout. An oracle failure or timeout on the rewritten side is a
// mismatch, never a system fault: uncertainty defaults to not applying
// the abstraction.
func validateCorpus(ctx context.Context, oracle Oracle, printer Printer, originals, rewritten []*m.Program, abstractions []m.Abstraction, timeout time.Duration, threads int) ([]programVerdict, error) {
	verdicts := make([]programVerdict, len(originals))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(normalizeThreads(threads))

	for i := range originals {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			verdicts[i] = validateProgram(groupCtx, oracle, printer, originals[i], rewritten[i], abstractions, timeout)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return verdicts, nil
}

func validateProgram(ctx context.Context, oracle Oracle, printer Printer, original, rewritten *m.Program, abstractions []m.Abstraction, timeout time.Duration) programVerdict {
	verdict := programVerdict{programID: original.ID}

	if len(implicatedAbstractions(abstractions, original.ID)) == 0 {
		// No call sites were introduced here; nothing to check.
		verdict.status = m.ValidationSkipped
		return verdict
	}

	originalSource, err := printer.Render(original, nil)
	if err != nil {
		slog.Error("failed to render original program", "program", original.ID, "error", err)

		verdict.status = m.ValidationSkipped

		return verdict
	}

	rewrittenSource, err := printer.Render(rewritten, abstractions)
	if err != nil {
		slog.Error("failed to render rewritten program", "program", original.ID, "error", err)

		verdict.status = m.ValidationFailed

		return verdict
	}

	baseline, err := evaluate(ctx, oracle, original.ID, originalSource, timeout)
	if err != nil {
		// Without a baseline there is nothing to compare against; the
		// program keeps its original form.
		slog.Warn("oracle failed on original program", "program", original.ID, "error", err)

		verdict.status = m.ValidationSkipped

		return verdict
	}

	output, err := evaluate(ctx, oracle, original.ID, rewrittenSource, timeout)
	if err != nil {
		slog.Warn("oracle failed on rewritten program", "program", original.ID, "error", err)

		verdict.status = m.ValidationFailed
		verdict.diff = err.Error()

		return verdict
	}

	if baseline == output {
		verdict.status = m.ValidationPassed
		return verdict
	}

	verdict.status = m.ValidationFailed
	verdict.diff = renderDiff(original.ID, baseline, output)

	return verdict
}

func evaluate(ctx context.Context, oracle Oracle, programID, source string, timeout time.Duration) (string, error) {
	runCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := oracle.Evaluate(runCtx, programID, source)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(output, "\n"), nil
}

func renderDiff(programID, baseline, output string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(baseline),
		B:        difflib.SplitLines(output),
		FromFile: programID + " (original)",
		ToFile:   programID + " (rewritten)",
		Context:  2,
	})
	if err != nil {
		return "output mismatch"
	}

	return diff
}

// implicatedAbstractions returns the abstractions with call sites in a
// divergent program; they are the ones removed from the selection before
// re-selection.
func implicatedAbstractions(abstractions []m.Abstraction, programID string) []string {
	var names []string

	for _, abstraction := range abstractions {
		for _, occ := range abstraction.Template.Occurrences {
			if occ.ProgramID == programID {
				names = append(names, abstraction.Name)
				break
			}
		}
	}

	return names
}
