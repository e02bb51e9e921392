package domain

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	m "refract.dev/pkg/refract/internal/model"
)

// Per-call-site cost: the invocation node. Argument slots are occupied
// by the hole fills moved out of the body, so they add no unit cost.
const callSiteCost = 1

// Definition overhead: the node binding the helper's name and parameters
// around the template body.
const definitionCost = 1

// ScoreTemplate computes a template's net compression value over a given
// occurrence subset: nodes saved across all instantiations minus the
// one-time cost of emitting the definition.
func ScoreTemplate(template *m.Template, occurrences []m.BoundOccurrence) int {
	saved := 0
	for _, occ := range occurrences {
		saved += occ.Node.Size() - callSiteCost
	}

	return saved - (template.BodySize() + definitionCost)
}

// ScoreCandidates scores every template in parallel and discards those
// with non-positive net savings. The result is ranked by the
// deterministic tie-break policy.
func ScoreCandidates(ctx context.Context, templates []*m.Template, cfg MineConfig) ([]m.Candidate, error) {
	scored := make([]*m.Candidate, len(templates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(normalizeThreads(cfg.Threads))

	for i, template := range templates {
		i, template := i, template
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			score := ScoreTemplate(template, template.Occurrences)
			if score <= 0 {
				return nil
			}

			consumed := make([]m.Position, len(template.Occurrences))
			for j, occ := range template.Occurrences {
				consumed[j] = occ.Pos
			}

			scored[i] = &m.Candidate{Template: template, Score: score, Consumed: consumed}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	candidates := []m.Candidate{}
	for _, candidate := range scored {
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}

	RankCandidates(candidates)

	return candidates, nil
}

// RankCandidates orders candidates for selection: higher net savings
// first; ties broken by broader reuse, then by fewer holes, then by
// lexicographically smaller signature so output is reproducible.
func RankCandidates(candidates []m.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessCandidate(candidates[j], candidates[i])
	})
}

// lessCandidate reports whether a ranks strictly below b.
func lessCandidate(a, b m.Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}

	if len(a.Template.Occurrences) != len(b.Template.Occurrences) {
		return len(a.Template.Occurrences) < len(b.Template.Occurrences)
	}

	if len(a.Template.Holes) != len(b.Template.Holes) {
		return len(a.Template.Holes) > len(b.Template.Holes)
	}

	return a.Template.Sig > b.Template.Sig
}
