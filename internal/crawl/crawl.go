package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlfredBerg/sps-crawler/internal/catalog"
	"github.com/AlfredBerg/sps-crawler/internal/download"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/orchestrate"
	"github.com/AlfredBerg/sps-crawler/internal/paginate"
	"github.com/AlfredBerg/sps-crawler/internal/products"
	"github.com/AlfredBerg/sps-crawler/internal/quality"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/subtables"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

// Option is one entry of the run menu.
type Option struct {
	Number int
	Title  string
}

var Options = []Option{
	{1, "Save top level pages."},
	{2, "Save child pages (files tables)."},
	{3, "Save child pages (files tables) - use links.csv."},
	{4, "Download files. (use --file_dl_key for specific key)"},
	{5, "Download files. (use --file_dl_key for specific key) - use dl_links.csv"},
	{6, "*** Run full process."},
	{7, "Create links.csv (and secondary_links.csv) file from top level pages."},
	{8, "Toggle debug flag."},
	{9, "Quit."},
	{10, "Quality check. (Missing download files)"},
	{11, "Print missing download files from 'missing_files.csv'."},
	{12, "Download missing files. (Uses dl_links.csv)"},
	{13, "Get download links - create 'dl_links.csv'."},
	{14, "Get product images."},
	{15, "Get product images. (read from link file)"},
	{16, "Quality check product images."},
	{17, "Download missing images."},
	{18, "Parse data sub-tables to CSV."},
}

// Run executes one menu option.
func (j *Job) Run(ctx context.Context, option int, p Params) error {
	j.Log.Info("running option", zap.Int("option", option), zap.String("table", j.Ctx.Table.Name),
		zap.Stringer("logon", j.Ctx.Subsidiary), zap.Bool("debug", j.Ctx.Debug))
	switch option {
	case 1:
		return j.SaveTopPages()
	case 2:
		return j.SaveChildPages(false, p.Start, p.End)
	case 3:
		return j.SaveChildPages(true, p.Start, p.End)
	case 4:
		return j.DownloadFiles(ctx, false, p)
	case 5:
		return j.DownloadFiles(ctx, true, p)
	case 6:
		if err := j.SaveTopPages(); err != nil {
			return err
		}
		if err := j.SaveChildPages(false, p.Start, p.End); err != nil {
			return err
		}
		return j.DownloadFiles(ctx, false, Params{End: -1, Key: p.Key})
	case 7:
		_, err := j.CreateLinks()
		return err
	case 8:
		j.Ctx = j.Ctx.WithDebug(!j.Ctx.Debug)
		j.Log.Info("debug flag set", zap.Bool("debug", j.Ctx.Debug))
		return nil
	case 9:
		return ErrQuit
	case 10:
		_, err := j.CheckFiles()
		return err
	case 11:
		return j.PrintMissing()
	case 12:
		return j.RetryMissing(ctx)
	case 13:
		_, err := download.BuildManifest(j.Storage, j.archive(), j.Ctx, j.Log)
		return err
	case 14:
		return j.ProductImages(ctx, false)
	case 15:
		return j.ProductImages(ctx, true)
	case 16:
		_, err := j.CheckProductImages()
		return err
	case 17:
		return j.MissingImages(ctx)
	case 18:
		return j.SubTables()
	}
	return fmt.Errorf("invalid choice %d, enter a number between 1 and %d", option, len(Options))
}

func (j *Job) SaveTopPages() error {
	s, err := j.openBrowser()
	if err != nil {
		return err
	}
	w := paginate.NewWalker(s, j.Log, j.Ctx.Debug)
	if j.Sleep != nil {
		w.Sleep = j.Sleep
	}
	pages, err := w.Walk(j.Ctx.FullURL(j.Ctx.Table.URLPath), j.Ctx.Table.TableID)
	if err != nil {
		return err
	}
	if err := j.archive().SaveTopPages(pages); err != nil {
		return err
	}
	j.Log.Info("saved top level pages", zap.String("file", j.Ctx.Layout.TopLevelPageFile), zap.Int("pages", len(pages)))
	return nil
}

// CreateLinks extracts the record links of the saved listing pages into
// links.csv. Tables with a secondary column also get secondary_links.csv
// and ref_links.csv.
func (j *Job) CreateLinks() ([]links.Link, error) {
	pages, err := j.archive().TopPages()
	if err != nil {
		return nil, fmt.Errorf("read top level pages: %w", err)
	}
	prim, sec := links.ExtractAll(j.Log, j.Ctx.Table, pages, j.Ctx.Debug)
	if n := len(prim); n > 0 {
		prim, sec = links.Dedupe(prim, sec)
		if d := n - len(prim); d > 0 {
			j.Log.Info("dropped repeated links", zap.Int("dropped", d))
		}
	}
	if err := links.NewStore(prim...).Save(j.Storage, j.Ctx.Layout.LinksCSV); err != nil {
		return nil, err
	}
	if !j.Ctx.Table.HasSecondary() {
		return prim, nil
	}
	if err := links.NewStore(sec...).Save(j.Storage, j.Ctx.Layout.SecondaryLinksCSV); err != nil {
		return nil, err
	}
	n, err := download.CreateRefLinks(j.Storage, j.Ctx.Layout)
	if err != nil {
		return nil, err
	}
	j.Log.Info("created reference links", zap.String("file", j.Ctx.Layout.RefLinksCSV), zap.Int("rows", n))
	return prim, nil
}

func (j *Job) recordLinks(fromFile bool) ([]links.Link, error) {
	if !fromFile {
		return j.CreateLinks()
	}
	st, err := links.LoadStore(j.Storage, j.Ctx.Layout.LinksCSV)
	if err != nil {
		return nil, err
	}
	return st.All(), nil
}

// SaveChildPages archives the files tab of records start through end-1.
func (j *Job) SaveChildPages(fromFile bool, start, end int) error {
	all, err := j.recordLinks(fromFile)
	if err != nil {
		return err
	}
	r := &orchestrate.Resolver{Ctx: j.Ctx, Log: j.Log}
	if j.Ctx.Table.NeedsSecondaryRef() {
		if r.SecondaryRef, err = download.LoadSecondaryRef(j.Storage, j.Ctx.Layout); err != nil {
			return err
		}
	}
	s, err := j.openBrowser()
	if err != nil {
		return err
	}
	o := &orchestrate.Orchestrator{
		Session:   s,
		Archive:   j.archive(),
		Resolver:  r,
		Recorder:  j.Journal,
		Log:       j.Log,
		ChunkSize: j.chunkSize(),
		Debug:     j.Ctx.Debug,
		TableID:   session.FileDownloadTableID,
	}
	_, err = o.Process(all, start, end)
	return err
}

func (j *Job) manifest(fromFile bool) (*links.Keyed, error) {
	if fromFile {
		return download.LoadManifest(j.Storage, j.Ctx.Layout)
	}
	return download.BuildManifest(j.Storage, j.archive(), j.Ctx, j.Log)
}

func (j *Job) driver() (*download.Driver, error) {
	s, err := j.openBrowser()
	if err != nil {
		return nil, err
	}
	r := download.NewReconciler(s, j.Storage, j.Fetcher, j.Ctx, j.Log)
	r.Recorder = j.Journal
	if j.Sleep != nil {
		r.Sleep = j.Sleep
	}
	return &download.Driver{Reconciler: r, Log: j.Log}, nil
}

// DownloadFiles downloads the manifest, either one key at a time starting
// at p.Key or the keys p.Start through p.End.
func (j *Job) DownloadFiles(ctx context.Context, fromFile bool, p Params) error {
	all, err := j.manifest(fromFile)
	if err != nil {
		return err
	}
	d, err := j.driver()
	if err != nil {
		return err
	}
	var stats download.Stats
	if p.Key != "" {
		stats, err = d.Interactive(ctx, all, p.Key, j.NextKey)
		if errors.Is(err, download.ErrKeyNotFound) {
			j.Log.Error("no such file download key", zap.Error(err))
			err = nil
		}
	} else {
		stats = d.Range(ctx, all, p.Start, p.End)
	}
	j.printStats(stats)
	return err
}

// RetryMissing downloads again every key listed in missing_files.csv.
func (j *Job) RetryMissing(ctx context.Context) error {
	all, err := j.manifest(true)
	if err != nil {
		return err
	}
	missing, err := j.Storage.ReadCSV(j.Ctx.Layout.MissingCSV, false)
	if err != nil {
		return err
	}
	d, err := j.driver()
	if err != nil {
		return err
	}
	j.printStats(d.RetryMissing(ctx, all, missing))
	return nil
}

func (j *Job) printStats(s download.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(j.out())
	t.SetTitle("Downloads")
	t.AppendHeader(table.Row{"Outcome", "Files"})
	for o := download.Downloaded; o <= download.OpenFailed; o++ {
		if n := s.Outcomes[o]; n > 0 {
			t.AppendRow(table.Row{o.String(), n})
		}
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d keys", s.Keys), s.Files})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func (j *Job) checker() (*quality.Checker, error) {
	l := j.Ctx.Layout
	return quality.NewChecker(j.Storage, l.FileDownloadDir, l.MissingCSV, l.AccessDeniedCSV, j.Log)
}

func (j *Job) check(entries []quality.Entry) ([]quality.Entry, error) {
	c, err := j.checker()
	if err != nil {
		return nil, err
	}
	missing, err := c.Missing(entries)
	if err != nil {
		return nil, err
	}
	if j.Journal != nil {
		for _, m := range missing {
			if err := j.Journal.HandleMissing(m.Key, m.Filename, m.URL); err != nil {
				j.Log.Warn("failed recording missing file", zap.Error(err))
			}
		}
	}
	return missing, nil
}

// CheckFiles compares dl_links.csv with the downloaded files and rewrites
// missing_files.csv.
func (j *Job) CheckFiles() ([]quality.Entry, error) {
	rows, err := j.Storage.ReadCSV(j.Ctx.Layout.DownloadLinksCSV, false)
	if err != nil {
		return nil, err
	}
	return j.check(quality.EntriesFromRows(rows))
}

func (j *Job) PrintMissing() error {
	rows, err := j.Storage.ReadCSV(j.Ctx.Layout.MissingCSV, false)
	if err != nil {
		return err
	}
	quality.Print(j.out(), quality.EntriesFromRows(rows))
	return nil
}

func (j *Job) productDownloader() *products.Downloader {
	return &products.Downloader{
		Fetcher: j.Fetcher,
		Dir:     j.Ctx.Layout.FileDownloadDir,
		Resolve: j.Ctx.FullURL,
		Log:     j.Log,
	}
}

// ProductImages saves every product picture of the listing pages, reading
// the product list from product_images.csv when fromFile is set.
func (j *Job) ProductImages(ctx context.Context, fromFile bool) error {
	name := j.Ctx.Layout.ProductImagesCSV
	var items []products.Item
	if fromFile {
		var err error
		if items, err = products.LoadList(j.Storage, name); err != nil {
			return err
		}
	} else {
		pages, err := j.archive().TopPages()
		if err != nil {
			return fmt.Errorf("read top level pages: %w", err)
		}
		items = products.ExtractAll(pages, j.Log)
		if err := products.SaveList(j.Storage, name, items); err != nil {
			return err
		}
	}
	j.productDownloader().Download(ctx, items, j.imageWorkers(false))
	return nil
}

func (j *Job) CheckProductImages() ([]quality.Entry, error) {
	items, err := products.LoadList(j.Storage, j.Ctx.Layout.ProductImagesCSV)
	if err != nil {
		return nil, err
	}
	return j.check(products.CheckEntries(items, j.Ctx.Debug))
}

// MissingImages downloads the product pictures listed in missing_files.csv.
func (j *Job) MissingImages(ctx context.Context) error {
	items, err := products.LoadList(j.Storage, j.Ctx.Layout.ProductImagesCSV)
	if err != nil {
		return err
	}
	rows, err := j.Storage.ReadCSV(j.Ctx.Layout.MissingCSV, false)
	if err != nil {
		return err
	}
	todo := products.MissingItems(quality.EntriesFromRows(rows), items, j.Log)
	j.productDownloader().Download(ctx, todo, j.imageWorkers(true))
	return nil
}

// SubTables opens every record of links.csv and writes its data sub-tables
// to sub_tables/.
func (j *Job) SubTables() error {
	if len(j.Ctx.Table.SubTablesOf(catalog.Data)) == 0 {
		j.Log.Info("table has no data sub-tables", zap.String("table", j.Ctx.Table.Name))
		return nil
	}
	all, err := j.recordLinks(true)
	if err != nil {
		return err
	}
	s, err := j.openBrowser()
	if err != nil {
		return err
	}
	c := &subtables.Collector{Session: s, Ctx: j.Ctx, Log: j.Log, Sleep: j.Sleep}
	pages := c.Collect(all)
	_, err = subtables.WriteAll(j.Storage, j.Ctx, pages, j.now(), j.Log)
	return err
}
