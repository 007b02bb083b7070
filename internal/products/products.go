// Package products pulls product images out of the items listing.
package products

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"github.com/AlfredBerg/sps-crawler/internal/quality"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"go.uber.org/zap"
)

const (
	ListTableID = "listItemsTable"
	// PlaceholderImage is shown for products without a picture.
	PlaceholderImage = "image/upload_image.gif"

	debugCheckCap = 10
)

var header = []string{"id", "product", "image_url"}

// Item is one product row with a picture. IDs are assigned in listing order
// starting at 0 across all pages.
type Item struct {
	ID       int
	Product  string
	ImageURL string
}

func (i Item) Placeholder() bool {
	return i.ImageURL == PlaceholderImage
}

// ImageFilename is img_0012.jpg for id 12 and an url ending in .jpg.
func ImageFilename(id int, imageURL string) string {
	ext := ""
	if i := strings.LastIndex(imageURL, "."); i >= 0 {
		ext = imageURL[i:]
	}
	return fmt.Sprintf("img_%04d%s", id, ext)
}

// ExtractPage returns the product rows of one listing page numbered from
// next, and the next free id.
func ExtractPage(html string, next int) ([]Item, int, bool) {
	t, ok := htmltable.FindTable(html, ListTableID)
	if !ok {
		return nil, next, false
	}
	var items []Item
	for _, row := range t.Rows() {
		img, ok := row.Image()
		if !ok {
			continue
		}
		cells := row.Cells()
		if len(cells) < 3 {
			continue
		}
		name, _, ok := cells[1].AnchorWords(" ")
		if !ok {
			continue
		}
		items = append(items, Item{ID: next, Product: name, ImageURL: img})
		next++
	}
	return items, next, true
}

func ExtractAll(pages []string, log *zap.Logger) []Item {
	var all []Item
	next := 0
	for i, html := range pages {
		items, n, ok := ExtractPage(html, next)
		if !ok {
			log.Warn("table not found", zap.Int("page", i), zap.String("table", ListTableID))
			continue
		}
		all = append(all, items...)
		next = n
	}
	log.Info("product rows found", zap.Int("rows", len(all)))
	return all
}

func SaveList(st *storage.Storage, name string, items []Item) error {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{strconv.Itoa(it.ID), it.Product, it.ImageURL})
	}
	return st.WriteCSV(name, header, rows)
}

func LoadList(st *storage.Storage, name string) ([]Item, error) {
	rows, err := st.ReadCSV(name, true)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(rows))
	for i, r := range rows {
		if len(r) < 3 {
			continue
		}
		id, err := strconv.Atoi(r[0])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: bad id %q", name, i+1, r[0])
		}
		items = append(items, Item{ID: id, Product: r[1], ImageURL: r[2]})
	}
	return items, nil
}

// CheckEntries turns the product list into quality check entries. Images are
// stored flat, so the key is empty. Debug checks only the first rows.
func CheckEntries(items []Item, debug bool) []quality.Entry {
	var res []quality.Entry
	for i, it := range items {
		if debug && i >= debugCheckCap {
			break
		}
		if it.Placeholder() {
			continue
		}
		res = append(res, quality.Entry{Filename: ImageFilename(it.ID, it.ImageURL), URL: it.Product})
	}
	return res
}

var digits = regexp.MustCompile(`\d+`)

// MissingItems maps the filenames of a missing files report back to their
// product rows, img_0012.jpg being row 12.
func MissingItems(missing []quality.Entry, items []Item, log *zap.Logger) []Item {
	byID := make(map[int]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	var res []Item
	for _, m := range missing {
		d := digits.FindString(m.Filename)
		id, err := strconv.Atoi(d)
		if err != nil {
			log.Warn("no row id in filename", zap.String("file", m.Filename))
			continue
		}
		it, ok := byID[id]
		if !ok {
			log.Warn("row id not in product list", zap.Int("id", id), zap.String("file", m.Filename))
			continue
		}
		res = append(res, it)
	}
	return res
}
