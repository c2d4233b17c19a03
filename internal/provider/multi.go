package provider

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MultiSearch fans a query out to several search providers concurrently and
// merges their candidates. A provider that errors is logged and skipped; the
// merged search only fails when every provider failed.
type MultiSearch struct {
	providers []SearchProvider
	logger    *slog.Logger
}

// NewMultiSearch combines the given providers into one.
func NewMultiSearch(logger *slog.Logger, providers ...SearchProvider) *MultiSearch {
	return &MultiSearch{providers: providers, logger: logger}
}

// Search queries all providers in parallel (at most 4 in flight) and returns
// the union of their candidates.
func (m *MultiSearch) Search(ctx context.Context, query string) ([]Candidate, error) {
	var (
		mu      sync.Mutex
		merged  []Candidate
		lastErr error
		failed  int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, p := range m.providers {
		p := p
		g.Go(func() error {
			cands, err := p.Search(ctx, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				lastErr = err
				m.logger.Warn("search provider failed", "query", query, "error", err)
				// Collect what the others find.
				return nil
			}
			merged = append(merged, cands...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failed == len(m.providers) && lastErr != nil {
		return nil, lastErr
	}
	return merged, nil
}

var _ SearchProvider = (*MultiSearch)(nil)
