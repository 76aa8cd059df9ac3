package graph

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BuildParallel shards files across workers, builds a graph per shard
// with an independent schema context, and merges the results. Output is
// identical to a sequential build only when the shards are
// schema-independent; wildcard resolution across shards is limited to
// what the optional catalog supplies.
func BuildParallel(ctx context.Context, files []FileSpec, opts BuildOptions, workers int) (*BuildResult, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}
	if workers <= 1 {
		b := NewBuilder(opts)
		for _, spec := range files {
			b.AddSpec(spec)
		}
		return b.Build(ctx)
	}

	shards := make([][]FileSpec, workers)
	for i, spec := range files {
		shards[i%workers] = append(shards[i%workers], spec)
	}

	results := make([]*BuildResult, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			b := NewBuilder(opts)
			for _, spec := range shard {
				b.AddSpec(spec)
			}
			res, err := b.Build(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &BuildResult{Files: len(files)}
	graphs := make([]*LineageGraph, 0, workers)
	for _, res := range results {
		graphs = append(graphs, res.Graph)
		merged.Statements += res.Statements
		merged.Skipped = append(merged.Skipped, res.Skipped...)
		merged.Failures = append(merged.Failures, res.Failures...)
		for table, msg := range res.CatalogErrors {
			if merged.CatalogErrors == nil {
				merged.CatalogErrors = make(map[string]string)
			}
			merged.CatalogErrors[table] = msg
		}
	}
	merged.Graph = Merge(graphs...)
	return merged, nil
}
