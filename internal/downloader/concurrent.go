package downloader

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DownloadConcurrent downloads every URL on a pool of at most maxWorkers
// goroutines. Results are returned in input order and each is tagged
// Independent; one URL's failure is recorded in its own Result and does not
// stop the others. A non-positive maxWorkers uses Options.MaxWorkers.
func (d *Downloader) DownloadConcurrent(ctx context.Context, urls []string, maxWorkers int) []*Result {
	if maxWorkers <= 0 {
		maxWorkers = d.opts.MaxWorkers
	}

	results := make([]*Result, len(urls))

	// A plain Group: a failed URL must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i, u := range urls {
		g.Go(func() error {
			results[i] = d.downloadIsolated(ctx, u)
			return nil
		})
	}
	g.Wait()

	d.logger.Info("concurrent download finished", "urls", len(urls), "workers", maxWorkers)
	return results
}

// downloadIsolated runs one download, converting a panic into a failed result
func (d *Downloader) downloadIsolated(ctx context.Context, rawURL string) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("download panicked", "url", rawURL, "panic", r)
			res = &Result{URL: rawURL, BackoffStrategy: BackoffExponential}
			res.setError(fmt.Errorf("download panicked: %v", r))
		}
		res.Independent = true
	}()

	res, _ = d.Download(ctx, rawURL, nil)
	return res
}
