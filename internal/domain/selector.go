package domain

import (
	"log/slog"

	m "refract.dev/pkg/refract/internal/model"
)

// availability is the arena of consumed positions built up during
// selection. A position is free while it neither equals nor nests with
// any consumed position.
type availability struct {
	consumed []m.Position
}

func (a *availability) free(pos m.Position) bool {
	for _, taken := range a.consumed {
		if taken.Conflicts(pos) {
			return false
		}
	}

	return true
}

func (a *availability) take(positions []m.Position) {
	a.consumed = append(a.consumed, positions...)
}

// Select chooses a non-conflicting subset of candidates by deterministic
// greedy weighted set packing: repeatedly pick the highest-remaining-
// score candidate whose positions are still fully available, consume its
// positions, shrink the rest, and stop when no positive-score candidate
// remains. Greedy choice is a documented, reproducible approximation,
// not a claim of optimality.
func Select(candidates []m.Candidate, cfg MineConfig) m.Selection {
	selection := m.Selection{}
	arena := &availability{}
	remaining := append([]m.Candidate(nil), candidates...)

	for {
		best, ok := pickBest(remaining, arena, cfg)
		if !ok {
			break
		}

		arena.take(best.Consumed)
		selection.Picked = append(selection.Picked, best)

		slog.Debug("selected candidate",
			"sig", best.Template.Sig,
			"score", best.Score,
			"occurrences", len(best.Template.Occurrences),
		)

		remaining = dropCandidate(remaining, best.Template)
	}

	return selection
}

// pickBest shrinks every remaining candidate to its still-available
// occurrences, re-scores it, and returns the top-ranked positive one.
func pickBest(remaining []m.Candidate, arena *availability, cfg MineConfig) (m.Candidate, bool) {
	var best m.Candidate

	found := false

	for _, candidate := range remaining {
		shrunk, ok := shrink(candidate, arena, cfg)
		if !ok {
			continue
		}

		if !found || lessCandidate(best, shrunk) {
			best = shrunk
			found = true
		}
	}

	return best, found
}

// shrink restricts a candidate to occurrences whose positions are free,
// resolving self-overlap in occurrence order, and re-scores the result.
func shrink(candidate m.Candidate, arena *availability, cfg MineConfig) (m.Candidate, bool) {
	kept := []m.BoundOccurrence{}
	positions := []m.Position{}

	for _, occ := range candidate.Template.Occurrences {
		if !arena.free(occ.Pos) {
			continue
		}

		nested := false

		for _, taken := range positions {
			if taken.Conflicts(occ.Pos) {
				nested = true
				break
			}
		}

		if nested {
			continue
		}

		kept = append(kept, occ)
		positions = append(positions, occ.Pos)
	}

	if len(kept) < cfg.MinFrequency {
		return m.Candidate{}, false
	}

	score := ScoreTemplate(candidate.Template, kept)
	if score <= 0 {
		return m.Candidate{}, false
	}

	shrunk := m.Candidate{
		Template: &m.Template{
			Sig:         candidate.Template.Sig,
			Shape:       candidate.Template.Shape,
			Holes:       candidate.Template.Holes,
			Occurrences: kept,
		},
		Score:    score,
		Consumed: positions,
	}

	return shrunk, true
}

func dropCandidate(candidates []m.Candidate, template *m.Template) []m.Candidate {
	kept := candidates[:0]

	for _, candidate := range candidates {
		// Shrunken copies share the original template's shape; compare
		// by shape identity so the picked candidate is retired.
		if candidate.Template.Shape == template.Shape {
			continue
		}

		kept = append(kept, candidate)
	}

	return kept
}
