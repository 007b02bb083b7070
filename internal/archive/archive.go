package archive

import (
	"errors"
	"io/fs"
	"path"

	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
)

// Archive is the snapshot tree of one table: the paginated listing pages
// and one html file per record whose files tab had entries.
type Archive struct {
	st     *storage.Storage
	layout session.Layout
}

func New(st *storage.Storage, layout session.Layout) *Archive {
	return &Archive{st: st, layout: layout}
}

func (a *Archive) SaveTopPages(pages []string) error {
	if pages == nil {
		pages = []string{}
	}
	return a.st.SaveJSON(a.layout.TopLevelPageFile, pages)
}

func (a *Archive) TopPages() ([]string, error) {
	var pages []string
	if err := a.st.ReadJSON(a.layout.TopLevelPageFile, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// DetailPath is the snapshot path for a record name, sanitized.
func (a *Archive) DetailPath(name string) string {
	return path.Join(a.layout.SubPagesDir, storage.SanitizeFilename(name)+".html")
}

func (a *Archive) SaveDetail(name, html string) (string, error) {
	p := a.DetailPath(name)
	return p, a.st.SavePage(p, html)
}

type Detail struct {
	// Key is the snapshot file name without extension.
	Key  string
	Path string
}

// Details lists the saved record snapshots in name order. limit > 0 caps the
// list. A missing directory yields no details.
func (a *Archive) Details(limit int) ([]Detail, error) {
	files, err := a.st.ListFiles(a.layout.SubPagesDir, limit)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := make([]Detail, 0, len(files))
	for _, f := range files {
		res = append(res, Detail{Key: storage.BaseNameNoExt(f), Path: f})
	}
	return res, nil
}

func (a *Archive) ReadDetail(d Detail) (string, error) {
	return a.st.ReadFile(d.Path)
}
