package links

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/storage"
)

var ErrNoID = errors.New("id parameter not found in url")

// Link is one hyperlink as shown in a listing table. URL may be relative to
// the logon base url.
type Link struct {
	Text string
	URL  string
}

func (l Link) Empty() bool {
	return l.Text == "" && l.URL == ""
}

var header = []string{"display_text", "url"}

// Store is an ordered collection of links.
type Store struct {
	links []Link
}

func NewStore(links ...Link) *Store {
	s := &Store{}
	s.Add(links...)
	return s
}

func (s *Store) Add(links ...Link) {
	s.links = append(s.links, links...)
}

func (s *Store) Len() int { return len(s.links) }

func (s *Store) All() []Link {
	return append([]Link(nil), s.links...)
}

// Dedupe drops repeated primary links keeping the first occurrence, along
// with the secondary link on the same row so both stay index aligned.
func Dedupe(prim, sec []Link) ([]Link, []Link) {
	seen := make(map[Link]struct{}, len(prim))
	var p, s []Link
	for i, l := range prim {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		p = append(p, l)
		if i < len(sec) {
			s = append(s, sec[i])
		}
	}
	return p, s
}

// Slice returns links[start:end]. A negative end means through the last link;
// both bounds are clamped.
func (s *Store) Slice(start, end int) []Link {
	n := len(s.links)
	if end < 0 || end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		return nil
	}
	return append([]Link(nil), s.links[start:end]...)
}

func (s *Store) Save(st *storage.Storage, name string) error {
	rows := make([][]string, 0, len(s.links))
	for _, l := range s.links {
		rows = append(rows, []string{l.Text, l.URL})
	}
	return st.WriteCSV(name, header, rows)
}

func LoadStore(st *storage.Storage, name string) (*Store, error) {
	rows, err := st.ReadCSV(name, true)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	for i, r := range rows {
		if len(r) < 2 {
			return nil, fmt.Errorf("%s: row %d has %d columns", name, i+1, len(r))
		}
		s.Add(Link{Text: r[0], URL: r[1]})
	}
	return s, nil
}

// IDFromURL pulls the numeric value of "?{param}=" out of url, e.g.
// IDFromURL("page?ID=6789&x=1", "ID") is "6789".
func IDFromURL(url, param string) (string, error) {
	re, err := regexp.Compile(`\?` + regexp.QuoteMeta(param) + `=(\d+)`)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("%w: %s in %q", ErrNoID, param, url)
	}
	return m[1], nil
}

// NormalizeURL strips the scheme so urls reported by a tab can be matched
// against the ones that were opened.
func NormalizeURL(u string) string {
	u = strings.Replace(u, "http://", "", 1)
	return strings.Replace(u, "https://", "", 1)
}

// Chunks splits items into consecutive slices of n; the last one may be
// shorter.
func Chunks[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = 1
	}
	var res [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		res = append(res, items[i:end])
	}
	return res
}
