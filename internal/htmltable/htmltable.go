// Package htmltable reads tables out of saved page html.
package htmltable

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Table struct {
	sel *goquery.Selection
}

type Row struct {
	sel *goquery.Selection
}

type Cell struct {
	sel *goquery.Selection
}

func parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// FindTable looks up a table by id, with or without a leading "#". When no
// table has that exact id the first table whose id contains it is returned.
func FindTable(html, id string) (*Table, bool) {
	doc, err := parse(html)
	if err != nil {
		return nil, false
	}
	return findIn(doc.Selection, id)
}

func findIn(root *goquery.Selection, id string) (*Table, bool) {
	id = strings.TrimPrefix(id, "#")
	if id == "" {
		return nil, false
	}
	var found *goquery.Selection
	root.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		root.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, _ := s.Attr("id"); strings.Contains(v, id) {
				found = s
				return false
			}
			return true
		})
	}
	if found == nil {
		return nil, false
	}
	return &Table{sel: found}, true
}

// FindPresentationTable returns the first table with role="presentation".
// Upload pages that are not rendered in an iframe carry their files table
// without an id.
func FindPresentationTable(html string) (*Table, bool) {
	doc, err := parse(html)
	if err != nil {
		return nil, false
	}
	s := doc.Find(`table[role="presentation"]`).First()
	if s.Length() == 0 {
		return nil, false
	}
	return &Table{sel: s}, true
}

func (t *Table) ID() string {
	v, _ := t.sel.Attr("id")
	return v
}

// Rows returns every tr of the table, nested tables included.
func (t *Table) Rows() []Row {
	var rows []Row
	t.sel.Find("tr").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, Row{sel: s})
	})
	return rows
}

// DirectRows returns the tr elements of this table, leaving out the rows of
// tables nested inside it.
func (t *Table) DirectRows() []Row {
	var rows []Row
	t.sel.Find("tr").Each(func(_ int, s *goquery.Selection) {
		if s.Closest("table").IsSelection(t.sel) {
			rows = append(rows, Row{sel: s})
		}
	})
	return rows
}

// Cells returns the td children of the row.
func (r Row) Cells() []Cell {
	var cells []Cell
	r.sel.Find("td").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, Cell{sel: s})
	})
	return cells
}

// DirectCells returns the th and td elements belonging to this row only.
func (r Row) DirectCells() []Cell {
	var cells []Cell
	r.sel.ChildrenFiltered("th, td").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, Cell{sel: s})
	})
	return cells
}

func (r Row) Image() (string, bool) {
	return r.sel.Find("img").First().Attr("src")
}

func (r Row) HasNestedTable() bool {
	return r.sel.Find("table").Length() > 0
}

// Anchor returns the text and href of the first a element in the cell.
func (c Cell) Anchor() (text, href string, ok bool) {
	a := c.sel.Find("a").First()
	if a.Length() == 0 {
		return "", "", false
	}
	href, _ = a.Attr("href")
	return strings.TrimSpace(a.Text()), href, true
}

// AnchorWords is Anchor with the text nodes of the anchor joined by sep, so
// <a>Blue<br>Granite</a> reads "Blue Granite".
func (c Cell) AnchorWords(sep string) (text, href string, ok bool) {
	a := c.sel.Find("a").First()
	if a.Length() == 0 {
		return "", "", false
	}
	href, _ = a.Attr("href")
	var words []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			if goquery.NodeName(n) == "#text" {
				if w := strings.TrimSpace(n.Text()); w != "" {
					words = append(words, w)
				}
				return
			}
			walk(n)
		})
	}
	walk(a)
	return strings.Join(words, sep), href, true
}

func (c Cell) Text() string {
	return strings.TrimSpace(c.sel.Text())
}

// Data returns the stripped text of every direct th/td, row by row. Rows
// holding a nested table are left out, as are the nested table's own rows.
func (t *Table) Data() [][]string {
	var data [][]string
	for _, r := range t.DirectRows() {
		if r.HasNestedTable() {
			continue
		}
		var row []string
		for _, c := range r.DirectCells() {
			row = append(row, c.Text())
		}
		data = append(data, row)
	}
	return data
}
