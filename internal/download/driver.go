package download

import (
	"context"
	"fmt"

	"github.com/AlfredBerg/sps-crawler/internal/links"
	"go.uber.org/zap"
)

// Stats counts outcomes of a driver run.
type Stats struct {
	Keys     int
	Files    int
	Outcomes map[Outcome]int
}

func (s *Stats) add(o Outcome) {
	if s.Outcomes == nil {
		s.Outcomes = map[Outcome]int{}
	}
	s.Files++
	s.Outcomes[o]++
}

func (s *Stats) merge(o Stats) {
	if s.Outcomes == nil {
		s.Outcomes = map[Outcome]int{}
	}
	s.Keys += o.Keys
	s.Files += o.Files
	for k, v := range o.Outcomes {
		s.Outcomes[k] += v
	}
}

// Driver walks a download manifest key by key.
type Driver struct {
	Reconciler *Reconciler
	Log        *zap.Logger
}

func (d *Driver) downloadKey(ctx context.Context, key string, files []links.Link, index, total int) Stats {
	var st Stats
	st.Keys = 1
	d.Log.Info("downloading key", zap.Int("index", index), zap.Int("total", total), zap.String("key", key), zap.Int("files", len(files)))
	for _, l := range files {
		if ctx.Err() != nil {
			return st
		}
		st.add(d.Reconciler.Download(ctx, key, l))
	}
	return st
}

// Key downloads every file of one key. An unknown key is ErrKeyNotFound and
// nothing is attempted.
func (d *Driver) Key(ctx context.Context, all *links.Keyed, key string) (Stats, error) {
	files, ok := all.Get(key)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return d.downloadKey(ctx, key, files, 1, 1), nil
}

// Interactive downloads key, then asks next for another one until it returns
// an empty key. An unknown key ends the loop.
func (d *Driver) Interactive(ctx context.Context, all *links.Keyed, key string, next func() (string, error)) (Stats, error) {
	var total Stats
	for key != "" {
		st, err := d.Key(ctx, all, key)
		if err != nil {
			return total, err
		}
		total.merge(st)
		if next == nil {
			break
		}
		if key, err = next(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Range downloads the keys at positions start through end inclusive. A
// negative end means through the last key.
func (d *Driver) Range(ctx context.Context, all *links.Keyed, start, end int) Stats {
	var total Stats
	if start < 0 {
		start = 0
	}
	subset := all.Subset(start, end)
	for i, key := range subset.Keys() {
		if ctx.Err() != nil {
			break
		}
		files, _ := subset.Get(key)
		total.merge(d.downloadKey(ctx, key, files, start+i+1, all.Len()))
	}
	return total
}

// RetryMissing downloads every key of a missing files report once. Keys no
// longer in the manifest are logged and skipped.
func (d *Driver) RetryMissing(ctx context.Context, all *links.Keyed, missing [][]string) Stats {
	var total Stats
	for _, key := range links.UniqueColumn(missing, 0) {
		st, err := d.Key(ctx, all, key)
		if err != nil {
			d.Log.Error("cannot retry key", zap.Error(err))
			continue
		}
		total.merge(st)
	}
	return total
}
