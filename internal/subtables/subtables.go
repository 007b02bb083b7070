// Package subtables flattens the data tables shown on record pages into one
// CSV per sub-table, each row tagged with the record it came from.
package subtables

import (
	"fmt"
	"path"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/catalog"
	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"go.uber.org/zap"
)

const (
	debugRecordCap = 11
	tabSettle      = time.Second
)

// Page is the html of one record page with all its tabs clicked.
type Page struct {
	Key  string
	HTML string
}

type Collector struct {
	Session browser.Session
	Ctx     session.Context
	Log     *zap.Logger
	Sleep   func(time.Duration)
}

// Collect opens every record page, clicks the tabs the table's sub-tables
// live on and keeps the resulting html. Failing records are logged and
// left out.
func (c *Collector) Collect(records []links.Link) []Page {
	sleep := c.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	tabs := c.Ctx.Table.TabXPaths()

	var pages []Page
	for i, l := range records {
		if c.Ctx.Debug && i >= debugRecordCap {
			break
		}
		log := c.Log.With(zap.Int("index", i), zap.Int("total", len(records)), zap.String("key", l.Text))
		if err := c.Session.Open(c.Ctx.FullURL(l.URL)); err != nil {
			log.Warn("failed opening record", zap.Error(err))
			continue
		}
		for _, xp := range tabs {
			if err := c.Session.Click(xp); err != nil {
				log.Warn("failed clicking tab", zap.String("xpath", xp), zap.Error(err))
				continue
			}
			sleep(tabSettle)
		}
		html, err := c.Session.PageSource()
		if err != nil {
			log.Warn("failed reading record", zap.Error(err))
			continue
		}
		pages = append(pages, Page{Key: l.Text, HTML: html})
	}
	return pages
}

// Parse joins the sub-table of every page into one grid. The first row is
// the sub-table's header with keyName in front; every other row starts with
// the key of its page. Pages without the table or with only a header row
// are skipped and short rows are padded.
func Parse(pages []Page, sub catalog.SubTable, keyName string) [][]string {
	var grid [][]string
	width := 0
	for _, p := range pages {
		t, ok := htmltable.FindTable(p.HTML, sub.TableID)
		if !ok {
			continue
		}
		data := t.Data()
		if len(data) <= 1 {
			continue
		}
		if grid == nil {
			grid = append(grid, append([]string{keyName}, data[0]...))
		}
		for _, row := range data[1:] {
			grid = append(grid, append([]string{p.Key}, row...))
		}
	}
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range grid {
		for len(row) < width {
			row = append(row, "")
		}
		grid[i] = row
	}
	return grid
}

// FileName is sub_tables/{name}_{yyyymmdd}.csv under the table's directory.
func FileName(layout session.Layout, name string, now time.Time) string {
	return path.Join(layout.SubTablesDir, fmt.Sprintf("%s_%s.csv", name, now.Format("20060102")))
}

// WriteAll parses every data sub-table of the run's table and writes one
// CSV per sub-table. It returns the files written.
func WriteAll(st *storage.Storage, c session.Context, pages []Page, now time.Time, log *zap.Logger) ([]string, error) {
	var written []string
	for _, sub := range c.Table.SubTablesOf(catalog.Data) {
		grid := Parse(pages, sub, c.Table.KeyName)
		if len(grid) == 0 {
			log.Info("no data for sub-table", zap.String("subtable", sub.Name))
			continue
		}
		name := FileName(c.Layout, sub.Name, now)
		if err := st.WriteCSV(name, nil, grid); err != nil {
			return written, err
		}
		log.Info("wrote sub-table", zap.String("subtable", sub.Name), zap.String("file", name), zap.Int("rows", len(grid)-1))
		written = append(written, name)
	}
	return written, nil
}
