package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/archive"
	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/browser/browsertest"
	"github.com/AlfredBerg/sps-crawler/internal/download"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const base = "http://ibs.example.com"

type journal struct {
	pages     []string
	downloads []string
	missing   []string
}

func (j *journal) HandlePage(index int, key, path string, rows int) error {
	j.pages = append(j.pages, fmt.Sprintf("%d:%s", index, key))
	return nil
}

func (j *journal) HandleDownload(key, filename, url, outcome string) error {
	j.downloads = append(j.downloads, key+"/"+filename+":"+outcome)
	return nil
}

func (j *journal) HandleMissing(key, filename, url string) error {
	j.missing = append(j.missing, key+"/"+filename)
	return nil
}

type fetcher struct {
	st    *storage.Storage
	fail  string
	mu    sync.Mutex
	calls []string
}

func (f *fetcher) Fetch(_ context.Context, url, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.fail != "" && strings.Contains(url, f.fail) {
		return errors.New("status 503")
	}
	return f.st.WriteFile(dst, []byte("img"))
}

type fixture struct {
	job      *Job
	st       *storage.Storage
	fake     *browsertest.Fake
	journal  *journal
	fetcher  *fetcher
	out      *bytes.Buffer
	connects int
}

func newFixture(t *testing.T, table string, site map[string]browsertest.Page) *fixture {
	c, err := session.New(table, session.IBS, session.Options{
		Logons: map[session.Subsidiary]session.Logon{session.IBS: {Name: "ibs", URL: base}},
	})
	require.NoError(t, err)

	st := storage.New(afero.NewMemMapFs())
	fake := browsertest.New(site)
	// Urls the site does not serve are native downloads.
	fake.OnOpen = func(u string) {
		if _, ok := site[u]; ok {
			return
		}
		_ = st.WriteFile(path.Join(c.BrowserDownloadDir, path.Base(u)), []byte("data"))
	}

	fx := &fixture{st: st, fake: fake, journal: &journal{}, fetcher: &fetcher{st: st}, out: &bytes.Buffer{}}
	fx.job = &Job{
		Ctx:     c,
		Storage: st,
		Journal: fx.journal,
		Fetcher: fx.fetcher,
		Log:     zaptest.NewLogger(t),
		Out:     fx.out,
		Connect: func() (browser.Session, error) {
			fx.connects++
			return fake, nil
		},
		Now:   func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) },
		Sleep: func(time.Duration) {},
	}
	return fx
}

func poFilesURL(id int) string {
	return fmt.Sprintf("%s/fileupload/cUpload.aspx?TransactionID=%d&Source=PO", base, id)
}

const poListing = `<table id="ListOpenPurchaseOrdersTable">
<tr><th>Date</th><th>PO</th></tr>
<tr><td>1/2/2024</td><td><a href="vPO.aspx?ID=100">PO 100</a></td></tr>
<tr><td>1/3/2024</td><td><a href="vPO.aspx?ID=101">PO 101</a></td></tr>
</table>`

const poFiles = `<table id="tblFiles"><tr><th>#</th><th>File</th></tr>
<tr><td>1</td><td><a href="f/quote.pdf">quote.pdf</a></td></tr>
<tr><td>2</td><td><a href="f/invoice.pdf">invoice.pdf</a></td></tr>
</table>`

const poNoFiles = `<table id="tblFiles"><tr><th>#</th><th>File</th></tr></table>`

func poSite() map[string]browsertest.Page {
	return map[string]browsertest.Page{
		base + "/listPos.aspx?tab=4": {HTML: poListing, Elements: []string{"//*[@id='ListOpenPurchaseOrdersTable']"}},
		poFilesURL(100):              {HTML: poFiles},
		poFilesURL(101):              {HTML: poNoFiles},
	}
}

func TestFullRun(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", poSite())
	l := fx.job.Ctx.Layout
	require.NoError(t, fx.st.WriteFile(path.Join(fx.job.Ctx.BrowserDownloadDir, "stale.pdf"), []byte("old")))
	require.NoError(t, fx.job.Prepare())
	require.False(t, fx.st.Exists(path.Join(fx.job.Ctx.BrowserDownloadDir, "stale.pdf")))

	require.NoError(t, fx.job.Run(context.Background(), 6, Params{End: -1}))
	require.Equal(t, 1, fx.connects)

	pages, err := archive.New(fx.st, l).TopPages()
	require.NoError(t, err)
	require.Equal(t, []string{poListing}, pages)

	rows, err := fx.st.ReadCSV(l.LinksCSV, false)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"display_text", "url"},
		{"PO 100", "vPO.aspx?ID=100"},
		{"PO 101", "vPO.aspx?ID=101"},
	}, rows)
	require.False(t, fx.st.Exists(l.SecondaryLinksCSV))

	require.True(t, fx.st.Exists(path.Join(l.SubPagesDir, "PO_100.html")))
	require.False(t, fx.st.Exists(path.Join(l.SubPagesDir, "PO_101.html")))
	require.Equal(t, []string{"0:PO 100"}, fx.journal.pages)

	rows, err = fx.st.ReadCSV(l.DownloadLinksCSV, false)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"PO_100", "quote.pdf", "f/quote.pdf"},
		{"PO_100", "invoice.pdf", "f/invoice.pdf"},
	}, rows)

	require.True(t, fx.st.Exists(path.Join(l.FileDownloadDir, "PO_100", "quote.pdf")))
	require.True(t, fx.st.Exists(path.Join(l.FileDownloadDir, "PO_100", "invoice.pdf")))
	require.Equal(t, []string{"PO_100/quote.pdf:downloaded", "PO_100/invoice.pdf:downloaded"}, fx.journal.downloads)
	require.Contains(t, fx.out.String(), "downloaded")

	missing, err := fx.job.CheckFiles()
	require.NoError(t, err)
	require.Empty(t, missing)
	require.True(t, fx.st.Exists(l.MissingCSV))
}

func TestQualityCheckAndRetry(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", poSite())
	l := fx.job.Ctx.Layout
	require.NoError(t, fx.st.WriteCSV(l.DownloadLinksCSV, nil, [][]string{
		{"PO_100", "quote.pdf", "f/quote.pdf"},
		{"PO_100", "invoice.pdf", "f/invoice.pdf"},
		{"PO_101", "plan.pdf", "f/plan.pdf"},
	}))
	require.NoError(t, fx.st.WriteFile(path.Join(l.FileDownloadDir, "PO_100", "quote.pdf"), []byte("x")))

	require.NoError(t, fx.job.Run(context.Background(), 10, Params{}))
	require.Equal(t, []string{"PO_100/invoice.pdf", "PO_101/plan.pdf"}, fx.journal.missing)
	require.Zero(t, fx.connects)

	fx.out.Reset()
	require.NoError(t, fx.job.Run(context.Background(), 11, Params{}))
	require.Contains(t, fx.out.String(), "plan.pdf")
	require.Contains(t, fx.out.String(), "Missing files")

	require.NoError(t, fx.job.Run(context.Background(), 12, Params{}))
	require.True(t, fx.st.Exists(path.Join(l.FileDownloadDir, "PO_100", "invoice.pdf")))
	require.True(t, fx.st.Exists(path.Join(l.FileDownloadDir, "PO_101", "plan.pdf")))

	missing, err := fx.job.CheckFiles()
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestDownloadSingleKey(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", poSite())
	l := fx.job.Ctx.Layout
	require.NoError(t, fx.st.WriteCSV(l.DownloadLinksCSV, nil, [][]string{
		{"PO_100", "quote.pdf", "f/quote.pdf"},
		{"PO_101", "plan.pdf", "f/plan.pdf"},
	}))

	var asked int
	fx.job.NextKey = func() (string, error) {
		asked++
		if asked == 1 {
			return "PO_101", nil
		}
		return "", nil
	}
	require.NoError(t, fx.job.Run(context.Background(), 5, Params{Key: "PO_100", End: -1}))
	require.Equal(t, 2, asked)
	require.Equal(t, []string{"PO_100/quote.pdf:downloaded", "PO_101/plan.pdf:downloaded"}, fx.journal.downloads)

	asked = 0
	fx.journal.downloads = nil
	require.NoError(t, fx.job.Run(context.Background(), 5, Params{Key: "PO_999", End: -1}))
	require.Zero(t, asked)
	require.Empty(t, fx.journal.downloads)
}

func TestDownloadRange(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", poSite())
	l := fx.job.Ctx.Layout
	require.NoError(t, fx.st.WriteCSV(l.DownloadLinksCSV, nil, [][]string{
		{"A", "a.pdf", "f/a.pdf"},
		{"B", "b.pdf", "f/b.pdf"},
		{"C", "c.pdf", "f/c.pdf"},
	}))
	require.NoError(t, fx.job.Run(context.Background(), 5, Params{Start: 1, End: 2}))
	require.Equal(t, []string{"B/b.pdf:downloaded", "C/c.pdf:downloaded"}, fx.journal.downloads)
}

func TestMenuControl(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", nil)
	require.False(t, fx.job.Ctx.Debug)
	require.NoError(t, fx.job.Run(context.Background(), 8, Params{}))
	require.True(t, fx.job.Ctx.Debug)
	require.NoError(t, fx.job.Run(context.Background(), 8, Params{}))
	require.False(t, fx.job.Ctx.Debug)

	require.ErrorIs(t, fx.job.Run(context.Background(), 9, Params{}), ErrQuit)
	require.Error(t, fx.job.Run(context.Background(), 0, Params{}))
	require.Error(t, fx.job.Run(context.Background(), len(Options)+1, Params{}))
}

func TestBrowserStartFailure(t *testing.T) {
	fx := newFixture(t, "open_purchase_orders", nil)
	fx.job.Connect = func() (browser.Session, error) { return nil, errors.New("no chromium") }
	require.NoError(t, fx.st.WriteCSV(fx.job.Ctx.Layout.DownloadLinksCSV, nil, [][]string{{"A", "a.pdf", "f/a.pdf"}}))
	err := fx.job.Run(context.Background(), 5, Params{End: -1})
	require.ErrorContains(t, err, "no chromium")
}

func TestSecondaryLinks(t *testing.T) {
	listing := `<table id="ListSupplierInvoicesTable">
<tr><th>SIPL</th><th>PO</th></tr>
<tr><td><a href="vSIPL.aspx?ID=7">SIPL 7</a></td><td><a href="vPO.aspx?ID=70">PO 70</a></td></tr>
<tr><td><a href="vSIPL.aspx?ID=8">SIPL 8</a></td><td><a href="vPO.aspx?ID=80">PO 80</a></td></tr>
</table>`
	filesURL := func(id, po int) string {
		return fmt.Sprintf("%s/fileupload/cUpload.aspx?TransactionID=%d&Source=SIPL_Files&POID=%d", base, id, po)
	}
	fx := newFixture(t, "supplier_invoices", map[string]browsertest.Page{
		filesURL(7, 70): {HTML: poFiles},
		filesURL(8, 80): {HTML: poFiles},
	})
	l := fx.job.Ctx.Layout
	require.NoError(t, archive.New(fx.st, l).SaveTopPages([]string{listing}))

	require.NoError(t, fx.job.Run(context.Background(), 7, Params{}))
	rows, err := fx.st.ReadCSV(l.RefLinksCSV, true)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"SIPL 7", "PO 70", "vPO.aspx?ID=70"},
		{"SIPL 8", "PO 80", "vPO.aspx?ID=80"},
	}, rows)

	require.NoError(t, fx.job.Run(context.Background(), 3, Params{Start: 1, End: -1}))
	require.Equal(t, []string{"1:SIPL 8"}, fx.journal.pages)
	require.True(t, fx.st.Exists(path.Join(l.SubPagesDir, "SIPL_8.html")))
}

func TestCreateLinksDropsRepeatedRows(t *testing.T) {
	page1 := `<table id="ListSupplierInvoicesTable">
<tr><th>SIPL</th><th>PO</th></tr>
<tr><td><a href="vSIPL.aspx?ID=7">SIPL 7</a></td><td><a href="vPO.aspx?ID=70">PO 70</a></td></tr>
<tr><td><a href="vSIPL.aspx?ID=8">SIPL 8</a></td><td><a href="vPO.aspx?ID=80">PO 80</a></td></tr>
</table>`
	page2 := `<table id="ListSupplierInvoicesTable">
<tr><th>SIPL</th><th>PO</th></tr>
<tr><td><a href="vSIPL.aspx?ID=8">SIPL 8</a></td><td><a href="vPO.aspx?ID=80">PO 80</a></td></tr>
<tr><td><a href="vSIPL.aspx?ID=9">SIPL 9</a></td><td></td></tr>
</table>`
	fx := newFixture(t, "supplier_invoices", nil)
	l := fx.job.Ctx.Layout
	require.NoError(t, archive.New(fx.st, l).SaveTopPages([]string{page1, page2}))

	prim, err := fx.job.CreateLinks()
	require.NoError(t, err)
	require.Len(t, prim, 3)

	p, err := links.LoadStore(fx.st, l.LinksCSV)
	require.NoError(t, err)
	s, err := links.LoadStore(fx.st, l.SecondaryLinksCSV)
	require.NoError(t, err)
	require.Equal(t, []links.Link{
		{Text: "SIPL 7", URL: "vSIPL.aspx?ID=7"},
		{Text: "SIPL 8", URL: "vSIPL.aspx?ID=8"},
		{Text: "SIPL 9", URL: "vSIPL.aspx?ID=9"},
	}, p.All())
	require.Equal(t, []links.Link{
		{Text: "PO 70", URL: "vPO.aspx?ID=70"},
		{Text: "PO 80", URL: "vPO.aspx?ID=80"},
		{},
	}, s.All())
}

func TestMissingReferenceFile(t *testing.T) {
	fx := newFixture(t, "supplier_invoices", nil)
	require.NoError(t, links.NewStore(links.Link{Text: "SIPL 7", URL: "vSIPL.aspx?ID=7"}).Save(fx.st, fx.job.Ctx.Layout.LinksCSV))
	require.ErrorIs(t, fx.job.Run(context.Background(), 3, Params{End: -1}), download.ErrReferenceMissing)
	require.Zero(t, fx.connects)
}

const itemsListing = `<table id="listItemsTable">
<tr><th>Img</th><th>Name</th><th>Qty</th></tr>
<tr><td><img src="https://img.example.com/a.jpg"></td><td><a href="vItem.aspx?ID=1">Blue Pearl</a></td><td>3</td></tr>
<tr><td><img src="https://img.example.com/c.png"></td><td><a href="vItem.aspx?ID=4">Absolute Black</a></td><td>7</td></tr>
<tr><td><img src="image/upload_image.gif"></td><td><a href="vItem.aspx?ID=5">No Picture</a></td><td>1</td></tr>
</table>`

func TestProductImages(t *testing.T) {
	fx := newFixture(t, "items", nil)
	l := fx.job.Ctx.Layout
	require.NoError(t, archive.New(fx.st, l).SaveTopPages([]string{itemsListing}))
	fx.fetcher.fail = "c.png"

	require.NoError(t, fx.job.Run(context.Background(), 14, Params{}))
	require.True(t, fx.st.Exists(l.ProductImagesCSV))
	require.True(t, fx.st.Exists(path.Join(l.FileDownloadDir, "img_0000.jpg")))
	require.False(t, fx.st.Exists(path.Join(l.FileDownloadDir, "img_0001.png")))
	require.Len(t, fx.fetcher.calls, 2)
	require.Zero(t, fx.connects)

	require.NoError(t, fx.job.Run(context.Background(), 16, Params{}))
	require.Equal(t, []string{"/img_0001.png"}, fx.journal.missing)

	fx.fetcher.fail = ""
	fx.fetcher.calls = nil
	require.NoError(t, fx.job.Run(context.Background(), 17, Params{}))
	require.Equal(t, []string{"https://img.example.com/c.png"}, fx.fetcher.calls)

	missing, err := fx.job.CheckProductImages()
	require.NoError(t, err)
	require.Empty(t, missing)

	fx.fetcher.calls = nil
	require.NoError(t, fx.job.Run(context.Background(), 15, Params{}))
	require.Len(t, fx.fetcher.calls, 2)
}

func TestSubTables(t *testing.T) {
	tabs := []string{"//*[@id='tabs']/li[1]/a", "//*[@id='tabs']/li[2]/a"}
	record := `<table id="ListInventoryTable"><tr><th>Product</th><th>Qty</th></tr><tr><td>Granite</td><td>3</td></tr></table>`
	fx := newFixture(t, "supplier_invoices", map[string]browsertest.Page{
		base + "/vSIPL.aspx?ID=7": {HTML: record, Elements: tabs},
	})
	l := fx.job.Ctx.Layout
	require.NoError(t, links.NewStore(links.Link{Text: "SIPL 7", URL: "vSIPL.aspx?ID=7"}).Save(fx.st, l.LinksCSV))

	require.NoError(t, fx.job.Run(context.Background(), 18, Params{}))
	require.Equal(t, tabs, fx.fake.Clicked)

	rows, err := fx.st.ReadCSV(path.Join(l.SubTablesDir, "sipl_items_20261018.csv"), false)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"sipl", "Product", "Qty"}, {"SIPL 7", "Granite", "3"}}, rows)
	require.False(t, fx.st.Exists(path.Join(l.SubTablesDir, "sipl_freight_bills_20261018.csv")))
}

func TestSubTablesWithoutDataTables(t *testing.T) {
	fx := newFixture(t, "items", nil)
	require.NoError(t, fx.job.Run(context.Background(), 18, Params{}))
	require.Zero(t, fx.connects)
}
