package orchestrate

import (
	"fmt"

	"github.com/AlfredBerg/sps-crawler/internal/archive"
	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize = 40
	// debugLinkCap stops a debug run once more links than this were opened.
	debugLinkCap = 20
)

// Recorder is told about every saved files tab.
type Recorder interface {
	HandlePage(index int, key, path string, rows int) error
}

type Orchestrator struct {
	Session  browser.Session
	Archive  *archive.Archive
	Resolver *Resolver
	Recorder Recorder
	Log      *zap.Logger

	ChunkSize int
	Debug     bool
	// TableID is the files table looked for in every tab.
	TableID string
}

type Result struct {
	Chunks    int
	Opened    int
	Saved     int
	Empty     int
	Skipped   int
	Unmatched int
}

type opened struct {
	index int
	link  links.Link
}

// Process opens the files tab of every link in all[start:end], chunk by
// chunk, and archives the tabs that list at least one file. A negative end
// means through the last link.
func (o *Orchestrator) Process(all []links.Link, start, end int) (Result, error) {
	var res Result
	size := o.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	if start < 0 {
		start = 0
	}

	if err := browser.CleanTabs(o.Session, o.Log); err != nil {
		return res, fmt.Errorf("clean tabs: %w", err)
	}

	work := links.NewStore(all...).Slice(start, end)
	chunks := links.Chunks(work, size)
	o.Log.Info("processing links in chunks", zap.Int("chunk_size", size), zap.Int("chunks", len(chunks)), zap.Int("links", len(work)))

	counter := 0
	for _, chunk := range chunks {
		if o.Debug && counter > debugLinkCap {
			break
		}
		if err := browser.SwitchToFirst(o.Session); err != nil {
			return res, err
		}

		byURL := make(map[string]opened, len(chunk))
		for _, l := range chunk {
			abs := counter + start
			counter++
			u, ok := o.Resolver.FilesURL(l)
			if !ok {
				res.Skipped++
				continue
			}
			if err := o.Session.NewTab(u); err != nil {
				o.Log.Warn("failed opening tab", zap.Int("index", abs), zap.String("url", u), zap.Error(err))
				res.Skipped++
				continue
			}
			byURL[links.NormalizeURL(u)] = opened{index: abs, link: l}
			res.Opened++
		}

		o.harvest(byURL, len(all), &res)
		res.Chunks++
	}

	if err := browser.SwitchToFirst(o.Session); err != nil {
		return res, err
	}
	o.Log.Info("files tabs processed",
		zap.Int("chunks", res.Chunks), zap.Int("saved", res.Saved), zap.Int("empty", res.Empty),
		zap.Int("skipped", res.Skipped), zap.Int("unmatched", res.Unmatched))
	return res, nil
}

// harvest visits every open tab in browser order. Tabs are matched to their
// link by url only.
func (o *Orchestrator) harvest(byURL map[string]opened, total int, res *Result) {
	handles, err := o.Session.WindowHandles()
	if err != nil {
		o.Log.Error("failed listing tabs", zap.Error(err))
		return
	}
	for _, h := range handles {
		if err := o.Session.SwitchTo(h); err != nil {
			o.Log.Warn("failed switching tab", zap.String("tab", string(h)), zap.Error(err))
			continue
		}
		url, err := o.Session.CurrentURL()
		if err != nil {
			o.Log.Warn("failed getting tab url", zap.String("tab", string(h)), zap.Error(err))
			continue
		}
		if browser.IsBlankTab(url) {
			continue
		}

		op, ok := byURL[links.NormalizeURL(url)]
		if !ok {
			o.Log.Warn("tab does not belong to this chunk, closing", zap.String("url", url))
			res.Unmatched++
			o.closeTab(url)
			continue
		}
		o.saveTab(op, url, total, res)
		o.closeTab(url)
	}
}

func (o *Orchestrator) saveTab(op opened, url string, total int, res *Result) {
	log := o.Log.With(zap.Int("index", op.index), zap.Int("total", total), zap.String("parent", op.link.Text))
	html, err := o.Session.PageSource()
	if err != nil {
		log.Warn("failed reading tab", zap.String("url", url), zap.Error(err))
		return
	}
	rows, ok := FilesTableRows(html, o.TableID)
	if !ok {
		log.Info("empty files table", zap.String("url", url))
		res.Empty++
		return
	}
	path, err := o.Archive.SaveDetail(op.link.Text, html)
	if err != nil {
		log.Error("failed saving files tab", zap.Error(err))
		return
	}
	res.Saved++
	log.Info("saved file", zap.String("file", path), zap.Int("rows", rows))
	if o.Recorder != nil {
		if err := o.Recorder.HandlePage(op.index, op.link.Text, path, rows); err != nil {
			log.Warn("failed recording page", zap.Error(err))
		}
	}
}

func (o *Orchestrator) closeTab(url string) {
	if err := o.Session.Close(); err != nil {
		o.Log.Warn("failed closing tab", zap.String("url", url), zap.Error(err))
	}
}

// FilesTableRows reports whether html holds a files table with at least one
// file. The id lookup comes first; pages without the id are checked for a
// role="presentation" table instead. rows is the row count of the matched
// table, minus the header for the presentation fallback.
func FilesTableRows(html, tableID string) (rows int, ok bool) {
	if t, found := htmltable.FindTable(html, tableID); found {
		n := len(t.Rows())
		return n, n > 1
	}
	if t, found := htmltable.FindPresentationTable(html); found {
		n := len(t.Rows())
		if n > 1 {
			return n - 1, true
		}
	}
	return 0, false
}
