package quality

import (
	"io"
	"path"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

// Entry is one expected file: key, filename, url.
type Entry struct {
	Key      string
	Filename string
	URL      string
}

func (e Entry) row() []string {
	return []string{e.Key, e.Filename, e.URL}
}

func EntriesFromRows(rows [][]string) []Entry {
	res := make([]Entry, 0, len(rows))
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		res = append(res, Entry{Key: r[0], Filename: r[1], URL: r[2]})
	}
	return res
}

// Checker finds expected files absent from BaseDir/{key}/{filename}.
type Checker struct {
	Storage *storage.Storage
	BaseDir string
	// Report is overwritten by every Missing call.
	Report string
	Log    *zap.Logger

	denied map[[2]string]bool
}

// NewChecker loads the access denied list when it exists.
func NewChecker(st *storage.Storage, baseDir, report, accessDeniedCSV string, log *zap.Logger) (*Checker, error) {
	c := &Checker{Storage: st, BaseDir: baseDir, Report: report, Log: log, denied: map[[2]string]bool{}}
	if !st.Exists(accessDeniedCSV) {
		return c, nil
	}
	rows, err := st.ReadCSV(accessDeniedCSV, false)
	if err != nil {
		return nil, err
	}
	for _, e := range EntriesFromRows(rows) {
		c.denied[deniedKey(e.Key, e.Filename)] = true
	}
	log.Info("read access denied files", zap.String("file", accessDeniedCSV), zap.Int("files", len(c.denied)))
	return c, nil
}

func deniedKey(key, filename string) [2]string {
	return [2]string{strings.ToLower(key), strings.ToLower(filename)}
}

// Missing returns the entries not on disk, in input order, and writes them
// to the report. Access denied files are never missing.
func (c *Checker) Missing(entries []Entry) ([]Entry, error) {
	missing := []Entry{}
	for i, e := range entries {
		c.Log.Debug("checking key", zap.Int("index", i+1), zap.Int("total", len(entries)), zap.String("key", e.Key))
		if c.denied[deniedKey(e.Key, e.Filename)] {
			continue
		}
		p := path.Join(c.BaseDir, e.Key, e.Filename)
		if c.Storage.Exists(p) {
			continue
		}
		if _, ok := c.Storage.FindCaseInsensitive(p); ok {
			continue
		}
		missing = append(missing, e)
	}

	rows := make([][]string, 0, len(missing))
	for _, e := range missing {
		rows = append(rows, e.row())
	}
	if err := c.Storage.WriteCSV(c.Report, nil, rows); err != nil {
		return nil, err
	}
	c.Log.Info("quality check done", zap.Int("checked", len(entries)), zap.Int("missing", len(missing)), zap.String("report", c.Report))
	return missing, nil
}

// Print renders a missing files list as a table.
func Print(w io.Writer, entries []Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Missing files")
	t.AppendHeader(table.Row{"#", "Key", "Filename", "URL"})
	for i, e := range entries {
		t.AppendRow(table.Row{i + 1, e.Key, e.Filename, e.URL})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(entries)})
	t.SetStyle(table.StyleLight)
	t.Render()
}
