package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/triage/internal/core/domain"
)

// ClassifyBatch classifies reqs concurrently with at most BatchWorkers in
// flight. results[i] belongs to reqs[i]; per-request errors are joined.
func (e *Engine) ClassifyBatch(ctx context.Context, reqs []Request) ([]*domain.ClassificationResult, error) {
	results := make([]*domain.ClassificationResult, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(e.cfg.BatchWorkers)
	for i := range reqs {
		g.Go(func() error {
			results[i], errs[i] = e.Classify(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
