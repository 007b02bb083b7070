package session

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/catalog"
)

// FileDownloadTableID is the id of the files table on a record's upload page.
const FileDownloadTableID = "tblFiles"

type Subsidiary int

const (
	IBS Subsidiary = iota
	DSI
)

func (s Subsidiary) String() string {
	switch s {
	case IBS:
		return "ibs"
	case DSI:
		return "dsi"
	}
	return fmt.Sprintf("subsidiary(%d)", int(s))
}

func ParseSubsidiary(id int) (Subsidiary, error) {
	switch Subsidiary(id) {
	case IBS, DSI:
		return Subsidiary(id), nil
	}
	return 0, fmt.Errorf("logon id must be 0 (ibs) or 1 (dsi), got %d", id)
}

type Logon struct {
	Name     string
	URL      string
	Username string
	Password string
}

func DefaultLogons() map[Subsidiary]Logon {
	return map[Subsidiary]Logon{
		IBS: {Name: "ibs", URL: "http://ibs.stoneprofits.com"},
		DSI: {Name: "dsi", URL: "http://dynamicstone.stoneprofits.com"},
	}
}

// Layout is the on-disk tree of one table for one subsidiary, e.g.
// sps_downloads/ibs/customers/.
type Layout struct {
	DirPrefix         string
	TopLevelPageFile  string
	SubPagesDir       string
	FileDownloadDir   string
	LinksCSV          string
	SecondaryLinksCSV string
	RefLinksCSV       string
	DownloadLinksCSV  string
	AccessDeniedCSV   string
	MissingCSV        string
	ProductImagesCSV  string
	SubTablesDir      string
}

func NewLayout(root string, sub Subsidiary, table string) Layout {
	prefix := path.Join(root, sub.String(), table)
	return Layout{
		DirPrefix:         prefix,
		TopLevelPageFile:  path.Join(prefix, "top_level_pages.json"),
		SubPagesDir:       path.Join(prefix, "files_tab_html"),
		FileDownloadDir:   path.Join(prefix, "files"),
		LinksCSV:          path.Join(prefix, "links.csv"),
		SecondaryLinksCSV: path.Join(prefix, "secondary_links.csv"),
		RefLinksCSV:       path.Join(prefix, "ref_links.csv"),
		DownloadLinksCSV:  path.Join(prefix, "dl_links.csv"),
		AccessDeniedCSV:   path.Join(prefix, "access_denied_files.csv"),
		MissingCSV:        path.Join(prefix, "missing_files.csv"),
		ProductImagesCSV:  path.Join(prefix, "product_images.csv"),
		SubTablesDir:      path.Join(prefix, "sub_tables"),
	}
}

// Context is built once per run and handed to every component. It is never
// mutated; WithDebug returns a copy.
type Context struct {
	Subsidiary Subsidiary
	Logon      Logon
	Table      catalog.Entry
	Layout     Layout
	Debug      bool

	// BrowserDownloadDir is where the browser drops native downloads before
	// they are moved under Layout.FileDownloadDir.
	BrowserDownloadDir string
	ErrsDir            string
}

type Options struct {
	Root               string
	BrowserDownloadDir string
	ErrsDir            string
	Debug              bool
	Logons             map[Subsidiary]Logon
}

func New(tableName string, sub Subsidiary, opts Options) (Context, error) {
	entry, err := catalog.Lookup(tableName)
	if err != nil {
		return Context{}, err
	}
	logons := opts.Logons
	if logons == nil {
		logons = DefaultLogons()
	}
	logon, ok := logons[sub]
	if !ok {
		return Context{}, fmt.Errorf("no logon configured for %s", sub)
	}
	if !strings.HasPrefix(logon.URL, "http") {
		logon.URL = "http://" + logon.URL
	}
	if opts.Root == "" {
		opts.Root = "sps_downloads"
	}
	if opts.BrowserDownloadDir == "" {
		opts.BrowserDownloadDir = "downloaded_files"
	}
	if opts.ErrsDir == "" {
		opts.ErrsDir = "ERRS"
	}
	return Context{
		Subsidiary:         sub,
		Logon:              logon,
		Table:              entry,
		Layout:             NewLayout(opts.Root, sub, tableName),
		Debug:              opts.Debug,
		BrowserDownloadDir: opts.BrowserDownloadDir,
		ErrsDir:            opts.ErrsDir,
	}, nil
}

func (c Context) WithDebug(debug bool) Context {
	c.Debug = debug
	return c
}

// FullURL resolves a possibly relative site url against the logon base url.
func (c Context) FullURL(ref string) string {
	base, err := url.Parse(c.Logon.URL + "/")
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
