package links

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AlfredBerg/sps-crawler/internal/catalog"
	"github.com/AlfredBerg/sps-crawler/internal/htmltable"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const listing = `<table id="ListSupplierInvoicesTable">
<tr><th>Invoice</th><th>PO</th><th>Amount</th></tr>
<tr><td><a href="vSupplierInvoice.aspx?ID=11">SIPL11</a></td><td><a href="vPO.aspx?ID=91">PO91</a></td><td>1</td></tr>
<tr><td>subtotal</td></tr>
<tr><td>SIPL12</td><td><a href="vPO.aspx?ID=92">PO92</a></td><td>2</td></tr>
<tr><td><a href="vSupplierInvoice.aspx?ID=13">SIPL13</a></td><td>no po</td><td>3</td></tr>
<tr><td><a href="vSupplierInvoice.aspx?ID=14">SIPL14</a></td></tr>
</table>`

func table(t *testing.T, html, id string) *htmltable.Table {
	t.Helper()
	tb, ok := htmltable.FindTable(html, id)
	require.True(t, ok)
	return tb
}

func TestExtractWithSecondary(t *testing.T) {
	sec := 1
	p, s := Extract(table(t, listing, "ListSupplierInvoicesTable"), 0, &sec)
	require.Equal(t, []Link{
		{Text: "SIPL11", URL: "vSupplierInvoice.aspx?ID=11"},
		{Text: "SIPL13", URL: "vSupplierInvoice.aspx?ID=13"},
	}, p)
	require.Equal(t, []Link{{Text: "PO91", URL: "vPO.aspx?ID=91"}, {}}, s)
}

func TestExtractPrimaryOnly(t *testing.T) {
	p, s := Extract(table(t, listing, "ListSupplierInvoicesTable"), 0, nil)
	require.Len(t, p, 3)
	require.Len(t, s, 3)
	require.Equal(t, "SIPL14", p[2].Text)
	for i := range s {
		require.True(t, s[i].Empty())
		require.NotEmpty(t, p[i].URL)
	}
}

func TestExtractAlignedProperty(t *testing.T) {
	for rows := 0; rows < 12; rows++ {
		var b strings.Builder
		b.WriteString(`<table id="t"><tr><th>a</th><th>b</th><th>c</th></tr>`)
		for i := 0; i < rows; i++ {
			switch i % 4 {
			case 0:
				fmt.Fprintf(&b, `<tr><td>x</td><td><a href="r?ID=%d">r%d</a></td><td><a href="s%d">s</a></td></tr>`, i, i, i)
			case 1:
				b.WriteString(`<tr><td>only</td></tr>`)
			case 2:
				fmt.Fprintf(&b, `<tr><td>x</td><td>plain</td><td><a href="s%d">s</a></td></tr>`, i)
			case 3:
				fmt.Fprintf(&b, `<tr><td>x</td><td><a href="r?ID=%d">r</a></td></tr>`, i)
			}
		}
		b.WriteString(`</table>`)
		for _, sec := range []*int{nil, intp(0), intp(2)} {
			p, s := Extract(table(t, b.String(), "t"), 1, sec)
			require.Equal(t, len(p), len(s))
			for _, l := range p {
				require.NotEmpty(t, l.URL)
			}
		}
	}
}

func intp(i int) *int { return &i }

func TestExtractAlternate(t *testing.T) {
	html := `<table role="presentation">
<tr><th>#</th><th>Title</th></tr>
<tr><td>1</td><td><a href="files/a.jpg"> a.jpg </a></td></tr>
<tr><td>2</td><td>none</td></tr>
<tr><td>3</td></tr>
</table>`
	require.Equal(t, []Link{{Text: "a.jpg", URL: "files/a.jpg"}}, ExtractAlternate(html, 1))
	require.Nil(t, ExtractAlternate(`<p>nothing</p>`, 1))
}

func TestExtractAll(t *testing.T) {
	entry, err := catalog.Lookup("supplier_invoices")
	require.NoError(t, err)
	pages := []string{listing, "<html>no table</html>", listing}
	p, s := ExtractAll(zaptest.NewLogger(t), entry, pages, false)
	require.Len(t, p, 4)
	require.Len(t, s, 4)
}

func TestStoreRoundTrip(t *testing.T) {
	st := storage.New(afero.NewMemMapFs())
	in := []Link{{Text: "PO 1", URL: "vPO.aspx?ID=1"}, {Text: `A, "quoted"`, URL: "vPO.aspx?ID=2"}, {Text: "", URL: ""}}
	require.NoError(t, NewStore(in...).Save(st, "t/links.csv"))

	raw, err := st.ReadCSV("t/links.csv", false)
	require.NoError(t, err)
	require.Equal(t, []string{"display_text", "url"}, raw[0])

	out, err := LoadStore(st, "t/links.csv")
	require.NoError(t, err)
	require.Equal(t, in, out.All())
}

func TestDedupeKeepsRowsAligned(t *testing.T) {
	prim := []Link{{"a", "1"}, {"b", "2"}, {"a", "1"}, {"a", "3"}}
	sec := []Link{{"x", "10"}, {}, {"y", "11"}, {"z", "12"}}
	p, s := Dedupe(prim, sec)
	require.Equal(t, []Link{{"a", "1"}, {"b", "2"}, {"a", "3"}}, p)
	require.Equal(t, []Link{{"x", "10"}, {}, {"z", "12"}}, s)

	p, s = Dedupe(prim, nil)
	require.Len(t, p, 3)
	require.Empty(t, s)
}

func TestStoreSlice(t *testing.T) {
	s := NewStore(Link{"a", "1"}, Link{"b", "2"}, Link{"a", "3"})
	require.Equal(t, []Link{{"a", "1"}, {"b", "2"}, {"a", "3"}}, s.All())
	require.Equal(t, []Link{{"b", "2"}, {"a", "3"}}, s.Slice(1, -1))
	require.Equal(t, []Link{{"a", "1"}}, s.Slice(0, 1))
	require.Nil(t, s.Slice(5, 2))
	require.Len(t, s.Slice(-3, 100), 3)
}

func TestIDFromURL(t *testing.T) {
	id, err := IDFromURL("page?ID=6789&x=1", "ID")
	require.NoError(t, err)
	require.Equal(t, "6789", id)

	id, err = IDFromURL("myurl/page?userID=42&more", "userID")
	require.NoError(t, err)
	require.Equal(t, "42", id)

	_, err = IDFromURL("page?x=1&ID=5", "ID")
	require.True(t, errors.Is(err, ErrNoID))
	_, err = IDFromURL("page", "ID")
	require.True(t, errors.Is(err, ErrNoID))
}

func TestNormalizeURL(t *testing.T) {
	require.Equal(t, "ibs.example.com/a?ID=1", NormalizeURL("https://ibs.example.com/a?ID=1"))
	require.Equal(t, "ibs.example.com/a?ID=1", NormalizeURL("http://ibs.example.com/a?ID=1"))
}

func TestChunks(t *testing.T) {
	require.Empty(t, Chunks([]int{}, 3))
	for k := 0; k <= 17; k++ {
		items := make([]int, k)
		for n := 1; n <= 6; n++ {
			ch := Chunks(items, n)
			require.Len(t, ch, (k+n-1)/n)
			for i, c := range ch {
				if i < len(ch)-1 {
					require.Len(t, c, n)
				} else {
					require.LessOrEqual(t, len(c), n)
				}
			}
		}
	}
	seven := Chunks([]string{"1", "2", "3", "4", "5", "6", "7"}, 5)
	require.Len(t, seven, 2)
	require.Len(t, seven[0], 5)
	require.Len(t, seven[1], 2)
}

func TestKeyedSubset(t *testing.T) {
	k := KeyedFromRows([][]string{
		{"K1", "a.pdf", "u1"}, {"K2", "b.pdf", "u2"}, {"K1", "c.pdf", "u3"}, {"K3", "d.pdf", "u4"}, {"bad"},
	})
	require.Equal(t, []string{"K1", "K2", "K3"}, k.Keys())
	l, ok := k.Get("K1")
	require.True(t, ok)
	require.Len(t, l, 2)

	sub := k.Subset(1, 2)
	require.Equal(t, []string{"K2", "K3"}, sub.Keys())
	require.Equal(t, []string{"K1"}, k.Subset(0, 0).Keys())
	require.Equal(t, 3, k.Subset(0, -1).Len())
	require.Equal(t, [][]string{{"K1", "a.pdf", "u1"}, {"K1", "c.pdf", "u3"}, {"K2", "b.pdf", "u2"}, {"K3", "d.pdf", "u4"}}, k.Rows())
}

func TestUniqueColumn(t *testing.T) {
	rows := [][]string{{"a", "1"}, {"b", "2"}, {"a", "3"}, {}}
	require.Equal(t, []string{"a", "b"}, UniqueColumn(rows, 0))
}
