package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownTable = errors.New("unknown table config")

type Kind int

const (
	SubLinks Kind = iota + 1
	Data
	Files
)

func (k Kind) String() string {
	switch k {
	case SubLinks:
		return "sublinks"
	case Data:
		return "data"
	case Files:
		return "files"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// SubTable is a table nested inside a record's detail page.
type SubTable struct {
	Name     string
	TableID  string
	Kind     Kind
	TabXPath string
}

// Entry describes one listing table of the ERP site: where it lives, which
// columns link to the per-record pages and how the files tab of a record is
// addressed.
type Entry struct {
	Name       string
	URLPath    string
	FilePrefix string
	TableID    string
	KeyName    string

	Column          int
	SecondaryColumn *int

	SubTables []SubTable

	// FilesURLTemplate contains {id} and optionally {id_2}.
	FilesURLTemplate string
	IDParam          string
}

func (e Entry) NeedsSecondaryRef() bool {
	return strings.Contains(e.FilesURLTemplate, "{id_2}")
}

func (e Entry) HasSecondary() bool {
	return e.SecondaryColumn != nil
}

func (e Entry) SubTablesOf(kind Kind) []SubTable {
	var res []SubTable
	for _, s := range e.SubTables {
		if s.Kind == kind {
			res = append(res, s)
		}
	}
	return res
}

func (e Entry) TabXPaths() []string {
	var res []string
	for _, s := range e.SubTables {
		if s.TabXPath != "" {
			res = append(res, s.TabXPath)
		}
	}
	return res
}

func col(i int) *int { return &i }

var tables = map[string]Entry{
	"open_purchase_orders": {
		URLPath:    "/listPos.aspx?tab=4",
		FilePrefix: "OPO",
		TableID:    "#ListOpenPurchaseOrdersTable",
		KeyName:    "purchase_order",
		Column:     1,
		SubTables: []SubTable{
			{Name: "po_details", TableID: "#ListPOTable", Kind: Data},
			{Name: "po_crm", TableID: "#ListCRMTable", Kind: Data},
			{Name: "po_files", TableID: "#tblFiles", Kind: Files},
		},
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID={id}&Source=PO",
	},
	"supplier_invoices": {
		URLPath:         "/listPurchases.aspx?ListStartDate=1/1/2022&ListEndDate=12/1/2024",
		FilePrefix:      "SIPL",
		TableID:         "#ListSupplierInvoicesTable",
		KeyName:         "sipl",
		Column:          0,
		SecondaryColumn: col(1),
		SubTables: []SubTable{
			{Name: "sipl_items", TableID: "#ListInventoryTable", Kind: Data, TabXPath: "//*[@id='tabs']/li[1]/a"},
			{Name: "sipl_freight_bills", TableID: "#ListFreightTable", Kind: Data, TabXPath: "//*[@id='tabs']/li[2]/a"},
		},
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID={id}&Source=SIPL_Files&POID={id_2}",
	},
	"items": {
		URLPath:    "/listItems.aspx",
		FilePrefix: "ITEMS",
		TableID:    "#listItemsTable",
		KeyName:    "item",
	},
	"customers": {
		URLPath:    "/listCustomers.aspx",
		FilePrefix: "CUSTOMERS",
		TableID:    "listReportTable",
		KeyName:    "cust_id",
		SubTables: []SubTable{
			{Name: "files", TableID: "#ListInventoryTable", Kind: Data, TabXPath: "//*[@id='tabs']/li[14]/a"},
			{Name: "crm", TableID: "#ListFreightTable", Kind: Data, TabXPath: "//*[@id='tabs']/li[2]/a"},
		},
		FilesURLTemplate: "fileupload/cUpload.aspx?PartyID={id}&Source=Customers",
	},
	"salesorders": {
		URLPath:          "/listSaleOrders.aspx?ListStartDate=1/1/2022&ListEndDate=10/31/2024",
		FilePrefix:       "CUSTOMERS",
		TableID:          "listSaleOrdersTable",
		KeyName:          "so",
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID={id}&Source=SaleOrder&PresaleID=0&SageOrHausProAPI=",
	},
	"quotes": {
		URLPath:          "/listOpportunities.aspx?tab=4&ListStartDate=1/1/2022&ListEndDate=10/31/2024",
		FilePrefix:       "QUOTES",
		TableID:          "ListQuoteTable",
		KeyName:          "qo",
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID={id}&Source=Presale&SubSource=Quote&OpportunityID={id_2}",
	},
	"quote_details_opportunites": {
		URLPath:    "/R_D_QuoteItemDetails.aspx?navi=&q1=1%2F1%2F2022&q2=&q=Customer",
		FilePrefix: "OPPS",
		TableID:    "listQuoteDetailsTable",
		KeyName:    "qo",
		Column:     3,
	},
	"opportunities": {
		URLPath:          "/listOpportunities.aspx?tab=0&list=ListOpportunities&ListStartDate=1/1/2022&ListEndDate=10/31/2024",
		FilePrefix:       "OPPOR",
		TableID:          "ListOpportunitiesTable",
		KeyName:          "opp",
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID={id}&Source=Presale&SubSource=Opportunity",
	},
	"products": {
		URLPath: "/listItems.aspx",
		TableID: "listItemsTable",
		KeyName: "item",
		Column:  1,
	},
	"vendors": {
		URLPath:          "/listVendors.aspx",
		TableID:          "listReportTable",
		KeyName:          "vendor",
		FilesURLTemplate: "fileupload/cUpload.aspx?FileType=image&PartyID={id}&Source=Vendors",
	},
	"bills": {
		URLPath:          "/ListBills.aspx",
		TableID:          "listReportTable",
		KeyName:          "bills",
		Column:           1,
		FilesURLTemplate: "fileupload/cUpload.aspx?TransactionID=110687&Source=Bill",
	},
}

func Lookup(name string) (Entry, error) {
	e, ok := tables[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	e.Name = name
	if e.IDParam == "" {
		e.IDParam = "ID"
	}
	return e, nil
}

func Names() []string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
