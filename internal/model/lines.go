package model

// Dataset names used by the record store and in source citations.
const (
	DatasetInvoices       = "invoices"
	DatasetPurchaseOrders = "purchase_orders"
	DatasetReceipts       = "receipts"
)

// Datasets lists the datasets in citation order.
var Datasets = []string{DatasetInvoices, DatasetPurchaseOrders, DatasetReceipts}

// InvoiceLine is a single line item on a vendor invoice.
type InvoiceLine struct {
	InvoiceID string  `json:"invoice_id"`
	PONumber  string  `json:"po_number"`
	Item      string  `json:"item"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
	Row       int     `json:"-"` // 0-based data row in the invoices dataset
}

// POLine is a single item line on a purchase order. (PONumber, Item) should
// be unique per PO in well-formed data.
type POLine struct {
	PONumber  string  `json:"po_number"`
	Item      string  `json:"item"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
	Row       int     `json:"-"`
}

// ReceiptLine records goods received against a PO item. Several receipts may
// exist for the same (PONumber, Item).
type ReceiptLine struct {
	ReceiptID        string  `json:"receipt_id"`
	PONumber         string  `json:"po_number"`
	Item             string  `json:"item"`
	QuantityReceived float64 `json:"quantity_received"`
	Row              int     `json:"-"`
}

// LineKey identifies a PO item for matching.
type LineKey struct {
	Item     string
	PONumber string
}

// Key returns the matching key of the invoice line.
func (l InvoiceLine) Key() LineKey { return LineKey{Item: l.Item, PONumber: l.PONumber} }

// Key returns the matching key of the PO line.
func (l POLine) Key() LineKey { return LineKey{Item: l.Item, PONumber: l.PONumber} }

// Key returns the matching key of the receipt line.
func (l ReceiptLine) Key() LineKey { return LineKey{Item: l.Item, PONumber: l.PONumber} }
