package download

import (
	"fmt"

	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
)

var refHeader = []string{"display_text", "secondary_text", "secondary_url"}

// CreateRefLinks pairs links.csv with secondary_links.csv row by row into
// ref_links.csv. Rows past the shorter file are dropped.
func CreateRefLinks(st *storage.Storage, layout session.Layout) (int, error) {
	prim, err := st.ReadCSV(layout.LinksCSV, true)
	if err != nil {
		return 0, err
	}
	sec, err := st.ReadCSV(layout.SecondaryLinksCSV, true)
	if err != nil {
		return 0, err
	}

	var rows [][]string
	for i := 0; i < len(prim) && i < len(sec); i++ {
		if len(prim[i]) < 1 || len(sec[i]) < 2 {
			continue
		}
		rows = append(rows, []string{prim[i][0], sec[i][0], sec[i][1]})
	}
	return len(rows), st.WriteCSV(layout.RefLinksCSV, refHeader, rows)
}

// LoadSecondaryRef reads ref_links.csv into a map from a record's display
// text to its cross reference. A missing file is ErrReferenceMissing.
func LoadSecondaryRef(st *storage.Storage, layout session.Layout) (map[string]links.Link, error) {
	if !st.Exists(layout.RefLinksCSV) {
		return nil, fmt.Errorf("%w: %s", ErrReferenceMissing, layout.RefLinksCSV)
	}
	rows, err := st.ReadCSV(layout.RefLinksCSV, true)
	if err != nil {
		return nil, err
	}
	res := make(map[string]links.Link, len(rows))
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		res[r[0]] = links.Link{Text: r[1], URL: r[2]}
	}
	return res, nil
}
