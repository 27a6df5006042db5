package ocr

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultBatchConcurrency = 4

// BatchOptions controls AnalyzeBatch.
type BatchOptions struct {
	Concurrency int
	// OnItem is called as each document finishes, from the worker goroutine.
	OnItem func(BatchItem)
}

// BatchItem is the outcome for the request at Index.
type BatchItem struct {
	Index   int
	Request AnalyzeRequest
	Result  Result
	Err     error
}

// OK reports whether the document was analyzed successfully.
func (b BatchItem) OK() bool { return b.Err == nil }

// AnalyzeBatch runs Analyze for every request with at most
// opts.Concurrency in flight. The returned slice has one item per request in
// input order; a failing document never stops the others.
func (c *Client) AnalyzeBatch(ctx context.Context, reqs []AnalyzeRequest, opts BatchOptions) []BatchItem {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			item := BatchItem{Index: i, Request: req}
			if err := ctx.Err(); err != nil {
				item.Err = err
			} else {
				item.Result, item.Err = c.Analyze(ctx, req)
			}
			items[i] = item
			if opts.OnItem != nil {
				opts.OnItem(item)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// BatchSummary counts successes and failures.
func BatchSummary(items []BatchItem) (succeeded, failed int) {
	for _, it := range items {
		if it.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
