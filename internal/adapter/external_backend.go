package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

// ExternalBackend delegates pattern discovery to an external
// compression engine. The corpus goes out as JSON on stdin, the engine
// answers with abstraction bodies whose holes are written $0, $1, ...
// and the adapter translates those bodies back into scored candidates
// by re-locating their occurrences in the corpus.
type ExternalBackend struct {
	command []string
	parser  Parser
	printer domain.Printer
}

// NewExternalBackend constructs an ExternalBackend around the given
// command line.
func NewExternalBackend(command []string, parser Parser, printer domain.Printer) *ExternalBackend {
	return &ExternalBackend{command: command, parser: parser, printer: printer}
}

type externalProgram struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

type externalRequest struct {
	Programs     []externalProgram `json:"programs"`
	MinFrequency int               `json:"min_frequency"`
	MinSize      int               `json:"min_size"`
	MaxSize      int               `json:"max_size"`
	MaxHoles     int               `json:"max_holes"`
}

type externalAbstraction struct {
	Arity int    `json:"arity"`
	Body  string `json:"body"`
}

type externalResponse struct {
	Abstractions []externalAbstraction `json:"abstractions"`
}

// Discover implements domain.Backend.
func (b *ExternalBackend) Discover(ctx context.Context, programs []*m.Program, cfg domain.MineConfig) ([]m.Candidate, error) {
	if len(b.command) == 0 {
		return nil, fmt.Errorf("external backend command not configured")
	}

	request := externalRequest{
		MinFrequency: cfg.MinFrequency,
		MinSize:      cfg.MinSize,
		MaxSize:      cfg.MaxSize,
		MaxHoles:     cfg.MaxHoles,
	}

	for _, program := range programs {
		source, err := b.printer.Render(program, nil)
		if err != nil {
			return nil, fmt.Errorf("render program %s: %w", program.ID, err)
		}

		request.Programs = append(request.Programs, externalProgram{ID: program.ID, Source: source})
	}

	response, err := b.invoke(ctx, request)
	if err != nil {
		return nil, err
	}

	var candidates []m.Candidate

	for i, raw := range response.Abstractions {
		candidate, ok, err := b.translate(ctx, programs, raw, cfg)
		if err != nil {
			return nil, fmt.Errorf("abstraction %d from external backend: %w", i, err)
		}

		if !ok {
			slog.Debug("discarding external abstraction", "index", i, "body", raw.Body)
			continue
		}

		candidates = append(candidates, candidate)
	}

	domain.RankCandidates(candidates)

	return candidates, nil
}

func (b *ExternalBackend) invoke(ctx context.Context, request externalRequest) (*externalResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode external request: %w", err)
	}

	cmd := exec.CommandContext(ctx, b.command[0], b.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("external backend failed: %w: %s", err, stderr.String())
	}

	var response externalResponse

	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("decode external response: %w", err)
	}

	return &response, nil
}

// translate parses an engine-supplied body, re-finds its occurrences in
// the corpus and scores it under the same contract the builtin backend
// honors. Abstractions that fall below the frequency floor or save
// nothing are dropped rather than rejected as errors.
func (b *ExternalBackend) translate(ctx context.Context, programs []*m.Program, raw externalAbstraction, cfg domain.MineConfig) (m.Candidate, bool, error) {
	forest, err := b.parser.Parse(ctx, raw.Body)
	if err != nil {
		return m.Candidate{}, false, fmt.Errorf("parse body: %w", err)
	}

	if len(forest) != 1 {
		return m.Candidate{}, false, fmt.Errorf("body must be a single expression, got %d", len(forest))
	}

	shape, err := markHoles(forest[0], raw.Arity)
	if err != nil {
		return m.Candidate{}, false, err
	}

	occurrences := domain.FindOccurrences(programs, shape, raw.Arity)

	minFrequency := cfg.MinFrequency
	if minFrequency < 2 {
		minFrequency = 2
	}

	if len(occurrences) < minFrequency {
		return m.Candidate{}, false, nil
	}

	sig, _ := domain.Canonicalize(shape, nil)

	holes := make([]m.Hole, raw.Arity)
	for i := range holes {
		holes[i] = m.Hole{Kind: m.HoleExpr}
	}

	template := &m.Template{Sig: sig, Shape: shape, Holes: holes, Occurrences: occurrences}

	score := domain.ScoreTemplate(template, occurrences)
	if score <= 0 {
		return m.Candidate{}, false, nil
	}

	consumed := make([]m.Position, len(occurrences))
	for i, occ := range occurrences {
		consumed[i] = occ.Pos
	}

	return m.Candidate{Template: template, Score: score, Consumed: consumed}, true, nil
}

// markHoles rewrites $N identifiers into hole nodes and checks every
// hole below the declared arity appears at least once. A body that is
// nothing but a hole carries no structure to abstract over and is
// rejected.
func markHoles(node *m.Node, arity int) (*m.Node, error) {
	seen := make([]bool, arity)

	shape, err := markHolesWalk(node, arity, seen)
	if err != nil {
		return nil, err
	}

	if shape.Kind == m.NodeHole {
		return nil, fmt.Errorf("body is a bare hole $%s", shape.Value)
	}

	for id, present := range seen {
		if !present {
			return nil, fmt.Errorf("hole $%d never appears in body", id)
		}
	}

	return shape, nil
}

func markHolesWalk(node *m.Node, arity int, seen []bool) (*m.Node, error) {
	if node.Kind == m.NodeIdent && strings.HasPrefix(node.Name, "$") {
		id, err := strconv.Atoi(node.Name[1:])
		if err != nil || id < 0 {
			return nil, fmt.Errorf("malformed hole marker %q", node.Name)
		}

		if id >= arity {
			return nil, fmt.Errorf("hole %s exceeds declared arity %d", node.Name, arity)
		}

		seen[id] = true

		return &m.Node{Kind: m.NodeHole, Value: strconv.Itoa(id)}, nil
	}

	out := &m.Node{
		Kind:   node.Kind,
		Name:   node.Name,
		Params: append([]string(nil), node.Params...),
		Lit:    node.Lit,
		Value:  node.Value,
	}

	for _, child := range node.Children {
		converted, err := markHolesWalk(child, arity, seen)
		if err != nil {
			return nil, err
		}

		out.Children = append(out.Children, converted)
	}

	return out, nil
}
