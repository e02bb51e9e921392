package domain

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	m "refract.dev/pkg/refract/internal/model"
)

// BuildAbstractions materializes the selection as named helpers, in
// selection order, numbering them from named+1 so names stay unique
// across successive selections of the same run. Parameters take the
// holes in their canonical order; the body is the fixed structure with
// hole markers replaced by parameter references.
func BuildAbstractions(selection m.Selection, named int) []m.Abstraction {
	abstractions := make([]m.Abstraction, len(selection.Picked))

	for i, candidate := range selection.Picked {
		template := candidate.Template
		name := fmt.Sprintf("fn_%d", named+i+1)

		params := make([]string, len(template.Holes))
		for j := range template.Holes {
			params[j] = fmt.Sprintf("x%d", j)
		}

		body := substituteHoles(template.Shape.Clone(), params)

		abstractions[i] = m.Abstraction{
			Name:     name,
			Params:   params,
			Body:     body,
			Template: template,
		}
	}

	return abstractions
}

func substituteHoles(node *m.Node, params []string) *m.Node {
	if node.Kind == m.NodeHole {
		id, err := strconv.Atoi(node.Value)
		if err != nil || id >= len(params) {
			return node
		}

		return &m.Node{Kind: m.NodeIdent, Name: params[id]}
	}

	for i, child := range node.Children {
		node.Children[i] = substituteHoles(child, params)
	}

	return node
}

// callSite is one pending replacement within a program.
type callSite struct {
	pos   m.Position
	name  string
	fills []*m.Node
}

// Rewrite replaces every consumed occurrence with an invocation of its
// helper, supplying the occurrence's concrete hole fills as arguments in
// hole order. Programs rewrite in parallel; within a program the
// replacements run bottom-up (deepest positions first) so an outer
// replacement never invalidates the position of an inner site that
// belongs to a different abstraction.
func Rewrite(ctx context.Context, programs []*m.Program, abstractions []m.Abstraction, threads int) ([]*m.Program, error) {
	sites := map[string][]callSite{}

	for _, abstraction := range abstractions {
		for _, occ := range abstraction.Template.Occurrences {
			sites[occ.ProgramID] = append(sites[occ.ProgramID], callSite{
				pos:   occ.Pos,
				name:  abstraction.Name,
				fills: occ.Fills,
			})
		}
	}

	rewritten := make([]*m.Program, len(programs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(normalizeThreads(threads))

	for i, program := range programs {
		i, program := i, program
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			result, err := rewriteProgram(program, sites[program.ID])
			if err != nil {
				return err
			}

			rewritten[i] = result

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return rewritten, nil
}

// rewriteProgram produces a new Program value; the original is retained
// untouched for validation diffing.
func rewriteProgram(program *m.Program, sites []callSite) (*m.Program, error) {
	result := program.Clone()

	ordered := append([]callSite(nil), sites...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].pos.Depth() != ordered[j].pos.Depth() {
			return ordered[i].pos.Depth() > ordered[j].pos.Depth()
		}

		return ordered[i].pos.String() > ordered[j].pos.String()
	})

	for _, site := range ordered {
		if err := replaceSite(result, site); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func replaceSite(program *m.Program, site callSite) error {
	call := &m.Node{Kind: m.NodeCall}
	call.Children = append(call.Children, &m.Node{Kind: m.NodeIdent, Name: site.name})

	for _, fill := range site.fills {
		if fill == nil {
			return fmt.Errorf("missing hole fill for %s at %s", site.name, site.pos)
		}

		call.Children = append(call.Children, fill.Clone())
	}

	path := site.pos.Path
	if len(path) == 0 {
		return fmt.Errorf("empty rewrite path in program %s", program.ID)
	}

	rootIndex := path[0]
	if rootIndex < 0 || rootIndex >= len(program.Roots) {
		return fmt.Errorf("rewrite root %d out of range in program %s", rootIndex, program.ID)
	}

	if len(path) == 1 {
		program.Roots[rootIndex] = call
		return nil
	}

	parent, err := nodeAt(program.Roots[rootIndex], path[1:len(path)-1])
	if err != nil {
		return fmt.Errorf("resolve rewrite site %s: %w", site.pos, err)
	}

	last := path[len(path)-1]
	if last < 0 || last >= len(parent.Children) {
		return fmt.Errorf("rewrite child %d out of range at %s", last, site.pos)
	}

	parent.Children[last] = call

	return nil
}
