package domain

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	m "refract.dev/pkg/refract/internal/model"
)

// MineConfig carries the policy knobs of one mining pass. The values are
// supplied by configuration, not hard-coded.
type MineConfig struct {
	MinFrequency  int
	MinSize       int
	MaxSize       int
	MaxHoles      int
	SkeletonDepth int
	Threads       int
}

// Index maps grouping signatures to the occurrences sharing them, built
// once per mining pass and passed by reference to later stages. Group
// order and occurrence order follow the corpus scan order so a pass is
// reproducible.
type Index struct {
	Groups map[m.Signature][]m.Occurrence
	Order  []m.Signature
	// WholeTree holds each program's whole-forest signature; programs
	// sharing one are clone families.
	WholeTree map[string]m.Signature
}

// programScan is the per-program map result merged into the Index.
type programScan struct {
	programID string
	wholeSig  m.Signature
	keys      []m.Signature
	occs      []m.Occurrence
}

// BuildIndex canonicalizes every subtree of every program and groups
// occurrences by skeleton signature. Programs are scanned in parallel;
// results merge into the index in corpus order under a single
// aggregation step.
func BuildIndex(ctx context.Context, programs []*m.Program, cfg MineConfig) (*Index, error) {
	scans := make([]*programScan, len(programs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(normalizeThreads(cfg.Threads))

	for i, program := range programs {
		i, program := i, program
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			scans[i] = scanProgram(program, cfg)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	index := &Index{
		Groups:    map[m.Signature][]m.Occurrence{},
		WholeTree: map[string]m.Signature{},
	}

	for _, scan := range scans {
		index.WholeTree[scan.programID] = scan.wholeSig

		for j, key := range scan.keys {
			if _, seen := index.Groups[key]; !seen {
				index.Order = append(index.Order, key)
			}

			index.Groups[key] = append(index.Groups[key], scan.occs[j])
		}
	}

	index.retainRecurring(cfg.MinFrequency)

	return index, nil
}

// scanProgram computes signatures for all subtrees of one program and
// collects the occurrences within the configured size bounds. Signature
// computation is total; the size policy only filters what is indexed
// for generalization.
func scanProgram(program *m.Program, cfg MineConfig) *programScan {
	scan := &programScan{programID: program.ID}

	forest := &m.Node{Kind: m.NodeSeq, Children: program.Roots}
	wholeSig, _ := Canonicalize(forest, nil)
	scan.wholeSig = wholeSig

	for rootIndex, root := range program.Roots {
		pos := m.Position{ProgramID: program.ID, Path: []int{rootIndex}}
		scanSubtrees(program.ID, root, pos, map[string]bool{}, cfg, scan)
	}

	return scan
}

func scanSubtrees(programID string, node *m.Node, pos m.Position, enclosing map[string]bool, cfg MineConfig, scan *programScan) {
	size := node.Size()

	if size >= cfg.MinSize && size <= cfg.MaxSize {
		sig, slots := Canonicalize(node, enclosing)
		key := SkeletonSignature(node, cfg.SkeletonDepth)

		slog.Debug("indexed subtree", "program", programID, "pos", pos.String(), "size", size, "sig", sig)

		scan.keys = append(scan.keys, key)
		scan.occs = append(scan.occs, m.Occurrence{
			ProgramID: programID,
			Pos:       pos,
			Node:      node,
			Slots:     slots,
		})
	}

	for i, child := range node.Children {
		childEnclosing := enclosing

		if binders := node.Binders(i); len(binders) > 0 {
			childEnclosing = make(map[string]bool, len(enclosing)+len(binders))
			for name := range enclosing {
				childEnclosing[name] = true
			}

			for _, name := range binders {
				childEnclosing[name] = true
			}
		}

		scanSubtrees(programID, child, pos.Child(i), childEnclosing, cfg, scan)
	}
}

// retainRecurring drops groups below the minimum occurrence count; this
// bounds the combinatorial explosion of sub-subtree signatures before
// generalization.
func (idx *Index) retainRecurring(minFrequency int) {
	if minFrequency < 2 {
		minFrequency = 2
	}

	kept := idx.Order[:0]

	for _, key := range idx.Order {
		if len(idx.Groups[key]) >= minFrequency {
			kept = append(kept, key)
			continue
		}

		delete(idx.Groups, key)
	}

	idx.Order = kept
}

// CloneGroups returns the families of programs whose whole-tree
// signatures are equal, each family in corpus order.
func (idx *Index) CloneGroups(programs []*m.Program) [][]string {
	bySig := map[m.Signature][]string{}
	order := []m.Signature{}

	for _, program := range programs {
		sig := idx.WholeTree[program.ID]
		if _, seen := bySig[sig]; !seen {
			order = append(order, sig)
		}

		bySig[sig] = append(bySig[sig], program.ID)
	}

	groups := [][]string{}

	for _, sig := range order {
		if len(bySig[sig]) > 1 {
			groups = append(groups, bySig[sig])
		}
	}

	return groups
}

func normalizeThreads(threads int) int {
	if threads <= 0 {
		return 1
	}

	return threads
}
