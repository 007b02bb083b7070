package links

import (
	"github.com/AlfredBerg/sps-crawler/internal/catalog"
	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"go.uber.org/zap"
)

func cellLink(c htmltable.Cell) Link {
	text, href, ok := c.Anchor()
	if !ok {
		return Link{}
	}
	return Link{Text: text, URL: href}
}

// Extract returns the links of column primary and, when secondary is set,
// the link of that column on the same row. Both results always have the
// same length and every primary link has a url.
func Extract(t *htmltable.Table, primary int, secondary *int) (prim, sec []Link) {
	need := primary + 1
	if secondary != nil && *secondary+1 > need {
		need = *secondary + 1
	}

	rows := t.Rows()
	for i := 1; i < len(rows); i++ {
		cells := rows[i].Cells()
		if len(cells) <= 1 && i < len(rows)-1 {
			continue
		}
		if len(cells) < need {
			continue
		}
		p := cellLink(cells[primary])
		if p.URL == "" {
			continue
		}
		var s Link
		if secondary != nil {
			s = cellLink(cells[*secondary])
		}
		prim = append(prim, p)
		sec = append(sec, s)
	}
	return prim, sec
}

// ExtractAlternate applies the column rule to the first role="presentation"
// table of html.
func ExtractAlternate(html string, column int) []Link {
	t, ok := htmltable.FindPresentationTable(html)
	if !ok {
		return nil
	}
	var res []Link
	rows := t.Rows()
	for i := 1; i < len(rows); i++ {
		cells := rows[i].Cells()
		if len(cells) <= column {
			continue
		}
		l := cellLink(cells[column])
		if l.URL == "" {
			continue
		}
		res = append(res, l)
	}
	return res
}

// ExtractAll walks the archived listing pages of entry and gathers the
// record links of every page. In debug mode only the first 4 pages are read.
func ExtractAll(log *zap.Logger, entry catalog.Entry, pages []string, debug bool) (prim, sec []Link) {
	for i, html := range pages {
		if debug && i > 3 {
			break
		}
		t, ok := htmltable.FindTable(html, entry.TableID)
		if !ok {
			log.Warn("no listing table on page", zap.Int("page", i), zap.String("table", entry.TableID))
			continue
		}
		p, s := Extract(t, entry.Column, entry.SecondaryColumn)
		prim = append(prim, p...)
		sec = append(sec, s...)
		log.Debug("page links", zap.Int("page", i), zap.Int("links", len(p)))
	}
	log.Info("listing links extracted", zap.Int("pages", len(pages)), zap.Int("links", len(prim)))
	return prim, sec
}
