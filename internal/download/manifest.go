package download

import (
	"errors"
	"fmt"

	"github.com/AlfredBerg/sps-crawler/internal/archive"
	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrKeyNotFound      = errors.New("download key not found")
	ErrReferenceMissing = errors.New("secondary reference file is required")
)

const (
	fileLinkColumn   = 1
	debugManifestCap = 5
)

// BuildManifest reads the file links of every archived detail page and saves
// them to dl_links.csv. The key of a page is its snapshot name.
func BuildManifest(st *storage.Storage, arch *archive.Archive, c session.Context, log *zap.Logger) (*links.Keyed, error) {
	limit := 0
	if c.Debug {
		limit = debugManifestCap
	}
	details, err := arch.Details(limit)
	if err != nil {
		return nil, fmt.Errorf("list detail pages: %w", err)
	}

	all := links.NewKeyed()
	for i, d := range details {
		log.Debug("reading file links", zap.Int("index", i+1), zap.Int("total", len(details)), zap.String("file", d.Path))
		html, err := arch.ReadDetail(d)
		if err != nil {
			log.Warn("failed reading detail page", zap.String("file", d.Path), zap.Error(err))
			continue
		}
		all.Add(d.Key, FileLinks(html, session.FileDownloadTableID, c.Table.SecondaryColumn)...)
	}

	if err := st.WriteCSV(c.Layout.DownloadLinksCSV, nil, all.Rows()); err != nil {
		return nil, err
	}
	log.Info("download manifest saved", zap.String("file", c.Layout.DownloadLinksCSV), zap.Int("keys", all.Len()))
	return all, nil
}

// FileLinks returns the links of a files tab page.
func FileLinks(html, tableID string, secondary *int) []links.Link {
	if t, ok := htmltable.FindTable(html, tableID); ok {
		prim, _ := links.Extract(t, fileLinkColumn, secondary)
		return prim
	}
	return links.ExtractAlternate(html, fileLinkColumn)
}

// LoadManifest reads dl_links.csv.
func LoadManifest(st *storage.Storage, layout session.Layout) (*links.Keyed, error) {
	rows, err := st.ReadCSV(layout.DownloadLinksCSV, false)
	if err != nil {
		return nil, err
	}
	return links.KeyedFromRows(rows), nil
}
