package products

import (
	"context"
	"path"

	"github.com/AlfredBerg/sps-crawler/internal/fetch"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	DefaultWorkers        = 40
	DefaultMissingWorkers = 30
)

// Partition splits items into n contiguous slices, the i-th being
// items[i*len/n : (i+1)*len/n]. Some slices are empty when n > len.
func Partition[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = 1
	}
	res := make([][]T, n)
	for i := 0; i < n; i++ {
		res[i] = items[i*len(items)/n : (i+1)*len(items)/n]
	}
	return res
}

type Result struct {
	Saved   int
	Failed  int
	Skipped int
}

func (r *Result) add(o Result) {
	r.Saved += o.Saved
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// Downloader saves product images into Dir, one worker per contiguous slice.
// Workers share nothing but the fetcher.
type Downloader struct {
	Fetcher fetch.Fetcher
	Dir     string
	// Resolve turns a possibly relative image url into an absolute one.
	Resolve func(string) string
	Log     *zap.Logger
}

// Download runs workers over items and waits for all of them.
func (d *Downloader) Download(ctx context.Context, items []Item, workers int) Result {
	parts := Partition(items, workers)
	results := make([]Result, len(parts))

	var wg conc.WaitGroup
	for i, part := range parts {
		i, part := i, part
		start := i * len(items) / len(parts)
		d.Log.Debug("worker", zap.Int("worker", i), zap.Int("start", start), zap.Int("end", start+len(part)))
		wg.Go(func() {
			results[i] = d.save(ctx, part)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		d.Log.Error("image worker panicked", zap.String("panic", r.String()))
	}

	var total Result
	for _, r := range results {
		total.add(r)
	}
	d.Log.Info("product images done", zap.Int("saved", total.Saved), zap.Int("failed", total.Failed), zap.Int("skipped", total.Skipped))
	return total
}

func (d *Downloader) save(ctx context.Context, items []Item) Result {
	var res Result
	for _, it := range items {
		if it.Placeholder() {
			res.Skipped++
			continue
		}
		url := it.ImageURL
		if d.Resolve != nil {
			url = d.Resolve(url)
		}
		dst := path.Join(d.Dir, ImageFilename(it.ID, it.ImageURL))
		if err := d.Fetcher.Fetch(ctx, url, dst); err != nil {
			d.Log.Warn("failed saving image", zap.Int("id", it.ID), zap.String("url", url), zap.Error(err))
			res.Failed++
			continue
		}
		res.Saved++
	}
	return res
}
