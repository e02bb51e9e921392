package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	m "refract.dev/pkg/refract/internal/model"
)

// MineArgs carries one mining run's inputs and policy.
type MineArgs struct {
	Programs        []*m.Program
	SkippedRecords  int
	Config          MineConfig
	ValidateRetries int
	ValidateTimeout time.Duration
	SkipValidation  bool
}

// Miner coordinates the full pipeline: discovery, selection, rewriting
// and validation, including the validator's bounded re-selection loop.
type Miner interface {
	Mine(ctx context.Context, args MineArgs) (*m.Report, error)
	Estimate(ctx context.Context, args MineArgs) ([]m.Candidate, error)
}

type miner struct {
	backend Backend
	oracle  Oracle
	printer Printer
}

// NewMiner constructs a Miner backed by the given pattern-discovery
// backend and validation collaborators.
func NewMiner(backend Backend, oracle Oracle, printer Printer) Miner {
	return &miner{backend: backend, oracle: oracle, printer: printer}
}

// Estimate runs discovery and scoring only, returning the ranked
// candidates without rewriting anything.
func (mn *miner) Estimate(ctx context.Context, args MineArgs) ([]m.Candidate, error) {
	return mn.backend.Discover(ctx, args.Programs, args.Config)
}

// Mine runs the whole pipeline. Validation failures remove the
// implicated abstractions and re-run selection on the reduced candidate
// set, up to the retry budget; past the budget the affected programs
// fall back to their originals and the conflict is reported.
func (mn *miner) Mine(ctx context.Context, args MineArgs) (*m.Report, error) {
	candidates, err := mn.backend.Discover(ctx, args.Programs, args.Config)
	if err != nil {
		return nil, fmt.Errorf("discover candidates: %w", err)
	}

	slog.Info("discovered candidates", "count", len(candidates))

	outcome, err := mn.selectAndValidate(ctx, args, candidates)
	if err != nil {
		return nil, err
	}

	return mn.buildReport(args, outcome)
}

// runOutcome is the state of an accepted (possibly partial) run.
type runOutcome struct {
	selection    m.Selection
	abstractions []m.Abstraction
	rewritten    []*m.Program
	verdicts     []programVerdict
	rejected     []m.AbstractionReport
	// terminalVetoed holds names from the final selection that exhausted
	// the retry budget; they stay out of the accepted listing.
	terminalVetoed map[string]bool
	// reverted marks programs restored to their original form after the
	// retry budget ran out.
	reverted []bool
}

func (mn *miner) selectAndValidate(ctx context.Context, args MineArgs, candidates []m.Candidate) (*runOutcome, error) {
	outcome := &runOutcome{}

	// Helper names never reset across attempts, so a rejected name can
	// never be reused by a later selection.
	named := 0

	for attempt := 0; ; attempt++ {
		selection := Select(candidates, args.Config)
		abstractions := BuildAbstractions(selection, named)
		named += len(abstractions)

		rewritten, err := Rewrite(ctx, args.Programs, abstractions, args.Config.Threads)
		if err != nil {
			return nil, fmt.Errorf("rewrite corpus: %w", err)
		}

		outcome.selection = selection
		outcome.abstractions = abstractions
		outcome.rewritten = rewritten

		if args.SkipValidation || mn.oracle == nil {
			outcome.verdicts = skippedVerdicts(args.Programs)
			return outcome, nil
		}

		verdicts, err := validateCorpus(ctx, mn.oracle, mn.printer, args.Programs, rewritten, abstractions, args.ValidateTimeout, args.Config.Threads)
		if err != nil {
			return nil, fmt.Errorf("validate corpus: %w", err)
		}

		outcome.verdicts = verdicts

		vetoed := vetoedNames(verdicts, abstractions)
		if len(vetoed) == 0 {
			return outcome, nil
		}

		if attempt >= args.ValidateRetries {
			slog.Error("validation retry budget exhausted", "vetoed", strings.Join(vetoed, ","))
			mn.abortPartial(outcome, vetoed, args)

			return outcome, nil
		}

		slog.Warn("abstractions vetoed by validation, reselecting", "attempt", attempt+1, "vetoed", strings.Join(vetoed, ","))

		candidates = mn.rejectCandidates(outcome, candidates, vetoed, "behavior mismatch on validation")
	}
}

// rejectCandidates records the vetoed abstractions and removes their
// candidates so the next selection cannot pick them again.
func (mn *miner) rejectCandidates(outcome *runOutcome, candidates []m.Candidate, vetoed []string, reason string) []m.Candidate {
	remaining := candidates

	for _, name := range vetoed {
		abstraction, ok := findAbstraction(outcome.abstractions, name)
		if !ok {
			continue
		}

		outcome.rejected = append(outcome.rejected, m.AbstractionReport{
			Name:        abstraction.Name,
			Params:      abstraction.Params,
			Body:        mn.renderBody(abstraction),
			Occurrences: len(abstraction.Template.Occurrences),
			NetSavings:  0,
			Status:      m.AbstractionRejected,
			Reason:      reason,
		})

		kept := remaining[:0]

		for _, candidate := range remaining {
			if candidate.Template.Shape == abstraction.Template.Shape {
				continue
			}

			kept = append(kept, candidate)
		}

		remaining = kept
	}

	return remaining
}

// abortPartial handles retry exhaustion: the irreconcilable
// abstractions are reported, and every program that either diverged or
// calls a vetoed helper reverts to its original form. Without the
// second group the emitted corpus would invoke definitions that are no
// longer part of the output.
func (mn *miner) abortPartial(outcome *runOutcome, vetoed []string, args MineArgs) {
	_ = mn.rejectCandidates(outcome, nil, vetoed, "retry budget exhausted; program left unrewritten")

	outcome.terminalVetoed = map[string]bool{}
	for _, name := range vetoed {
		outcome.terminalVetoed[name] = true
	}

	outcome.reverted = make([]bool, len(args.Programs))

	for i, program := range args.Programs {
		invokesVetoed := false

		for _, name := range implicatedAbstractions(outcome.abstractions, program.ID) {
			if outcome.terminalVetoed[name] {
				invokesVetoed = true
				break
			}
		}

		if outcome.verdicts[i].status != m.ValidationFailed && !invokesVetoed {
			continue
		}

		outcome.rewritten[i] = args.Programs[i]
		outcome.reverted[i] = true

		if invokesVetoed && outcome.verdicts[i].status == m.ValidationPassed {
			outcome.verdicts[i].status = m.ValidationSkipped
		}
	}
}

func (mn *miner) buildReport(args MineArgs, outcome *runOutcome) (*m.Report, error) {
	report := &m.Report{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Corpus: m.CorpusStats{
			Programs:       len(args.Programs),
			SkippedRecords: args.SkippedRecords,
			TotalNodes:     corpusSize(args.Programs),
		},
		CloneGroups: cloneGroups(args.Programs),
	}

	for i, candidate := range outcome.selection.Picked {
		abstraction := outcome.abstractions[i]
		if outcome.terminalVetoed[abstraction.Name] {
			continue
		}

		report.TotalSavings += candidate.Score
		report.Abstractions = append(report.Abstractions, m.AbstractionReport{
			Name:        abstraction.Name,
			Params:      abstraction.Params,
			Body:        mn.renderBody(abstraction),
			Occurrences: len(abstraction.Template.Occurrences),
			NetSavings:  candidate.Score,
			Status:      m.AbstractionAccepted,
		})
	}

	report.Abstractions = append(report.Abstractions, outcome.rejected...)

	for i, program := range args.Programs {
		rewritten := outcome.rewritten[i]

		entry := m.ProgramReport{
			ID:          program.ID,
			NodesBefore: program.Size(),
			NodesAfter:  rewritten.Size(),
			Invokes:     implicatedAbstractions(outcome.abstractions, program.ID),
			Validation:  outcome.verdicts[i].status,
			Diff:        outcome.verdicts[i].diff,
		}

		if outcome.verdicts[i].status == m.ValidationFailed || (outcome.reverted != nil && outcome.reverted[i]) {
			entry.NodesAfter = program.Size()
			entry.Invokes = nil
		}

		source, err := mn.printer.Render(rewritten, nil)
		if err != nil {
			return nil, fmt.Errorf("render program %s: %w", program.ID, err)
		}

		entry.Rewritten = source
		report.Programs = append(report.Programs, entry)
	}

	return report, nil
}

func (mn *miner) renderBody(abstraction m.Abstraction) string {
	source, err := mn.printer.Render(&m.Program{ID: abstraction.Name, Roots: []*m.Node{abstraction.Body}}, nil)
	if err != nil {
		return ""
	}

	return strings.TrimRight(source, "\n")
}

func skippedVerdicts(programs []*m.Program) []programVerdict {
	verdicts := make([]programVerdict, len(programs))
	for i, program := range programs {
		verdicts[i] = programVerdict{programID: program.ID, status: m.ValidationSkipped}
	}

	return verdicts
}

func vetoedNames(verdicts []programVerdict, abstractions []m.Abstraction) []string {
	seen := map[string]bool{}

	var names []string

	for _, verdict := range verdicts {
		if verdict.status != m.ValidationFailed {
			continue
		}

		for _, name := range implicatedAbstractions(abstractions, verdict.programID) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	return names
}

func findAbstraction(abstractions []m.Abstraction, name string) (m.Abstraction, bool) {
	for _, abstraction := range abstractions {
		if abstraction.Name == name {
			return abstraction, true
		}
	}

	return m.Abstraction{}, false
}

func corpusSize(programs []*m.Program) int {
	total := 0
	for _, program := range programs {
		total += program.Size()
	}

	return total
}

// cloneGroups reports families of programs whose whole-forest
// signatures coincide: their trees are identical up to binder renaming
// and literal spelling.
func cloneGroups(programs []*m.Program) [][]string {
	bySig := map[m.Signature][]string{}

	var order []m.Signature

	for _, program := range programs {
		forest := &m.Node{Kind: m.NodeSeq, Children: program.Roots}
		sig, _ := Canonicalize(forest, nil)

		if _, seen := bySig[sig]; !seen {
			order = append(order, sig)
		}

		bySig[sig] = append(bySig[sig], program.ID)
	}

	var groups [][]string

	for _, sig := range order {
		if len(bySig[sig]) > 1 {
			groups = append(groups, bySig[sig])
		}
	}

	return groups
}
