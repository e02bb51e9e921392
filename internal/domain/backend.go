package domain

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	m "refract.dev/pkg/refract/internal/model"
)

// Backend is the pattern-discovery capability: given the ingested
// corpus it produces ranked candidates honoring the Candidate contract.
// The built-in implementation runs the indexer, generalizer and scorer;
// an adapter around an external compression engine may substitute for
// it at configuration time.
type Backend interface {
	Discover(ctx context.Context, programs []*m.Program, cfg MineConfig) ([]m.Candidate, error)
}

type builtinBackend struct{}

// NewBuiltinBackend returns the in-process pattern discovery backend.
func NewBuiltinBackend() Backend {
	return &builtinBackend{}
}

func (b *builtinBackend) Discover(ctx context.Context, programs []*m.Program, cfg MineConfig) ([]m.Candidate, error) {
	index, err := BuildIndex(ctx, programs, cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("built subtree index", "groups", len(index.Order))

	templates, err := generalizeGroups(ctx, index, cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("generalized templates", "count", len(templates))

	return ScoreCandidates(ctx, templates, cfg)
}

// generalizeGroups unifies each signature group independently; groups do
// not interact, so they run in parallel and reassemble in index order.
func generalizeGroups(ctx context.Context, index *Index, cfg MineConfig) ([]*m.Template, error) {
	perGroup := make([][]*m.Template, len(index.Order))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(normalizeThreads(cfg.Threads))

	for i, key := range index.Order {
		i, key := i, key
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			perGroup[i] = Generalize(index.Groups[key], cfg)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	templates := []*m.Template{}
	for _, batch := range perGroup {
		templates = append(templates, batch...)
	}

	return templates, nil
}
