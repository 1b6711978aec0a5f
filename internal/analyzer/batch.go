package analyzer

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one request of a batch.
type BatchResult struct {
	Request  *AnalysisRequest
	Response *AnalysisResponse
	Err      error
}

// AnalyzeAll runs the requests on up to workers goroutines. Results keep the
// order of reqs. A failed request does not stop the others; the returned
// error is the first failure, if any.
func AnalyzeAll(ctx context.Context, a Analyzer, reqs []*AnalysisRequest, workers int) ([]BatchResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]BatchResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, req := range reqs {
		results[i].Request = req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			resp, err := a.Analyze(ctx, req)
			results[i].Response = resp
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			return results, fmt.Errorf("analysis of %s failed: %w", r.Request.Input, r.Err)
		}
	}
	return results, nil
}
