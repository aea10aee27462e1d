// Package records provides read access to the invoice, purchase order and
// receipt datasets the reconciliation engine works from.
package records

import (
	"context"
	"slices"
	"strings"

	"github.com/sells-group/invoice-recon/internal/model"
)

// Store is the read-only record store behind evidence assembly.
type Store interface {
	// InvoiceLines returns every line of the invoice, matched
	// case-insensitively, in dataset order. An unknown invoice yields an
	// empty slice and no error.
	InvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error)
	// POLines returns every PO line whose PO number is in poNumbers.
	POLines(ctx context.Context, poNumbers []string) ([]model.POLine, error)
	// ReceiptLines returns every receipt whose PO number is in poNumbers.
	ReceiptLines(ctx context.Context, poNumbers []string) ([]model.ReceiptLine, error)
}

// Tables is an immutable in-memory Store. It is safe for concurrent use.
type Tables struct {
	invoices []model.InvoiceLine
	pos      []model.POLine
	receipts []model.ReceiptLine

	byInvoice map[string][]int
	poByNum   map[string][]int
	rcByNum   map[string][]int
}

// NewTables indexes the given rows. Row fields are taken as given.
func NewTables(invoices []model.InvoiceLine, pos []model.POLine, receipts []model.ReceiptLine) *Tables {
	t := &Tables{
		invoices:  invoices,
		pos:       pos,
		receipts:  receipts,
		byInvoice: make(map[string][]int),
		poByNum:   make(map[string][]int),
		rcByNum:   make(map[string][]int),
	}
	for i, l := range invoices {
		k := normalizeInvoiceID(l.InvoiceID)
		t.byInvoice[k] = append(t.byInvoice[k], i)
	}
	for i, l := range pos {
		t.poByNum[l.PONumber] = append(t.poByNum[l.PONumber], i)
	}
	for i, l := range receipts {
		t.rcByNum[l.PONumber] = append(t.rcByNum[l.PONumber], i)
	}
	return t
}

// InvoiceLines implements Store.
func (t *Tables) InvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := t.byInvoice[normalizeInvoiceID(invoiceID)]
	out := make([]model.InvoiceLine, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.invoices[i])
	}
	return out, nil
}

// POLines implements Store.
func (t *Tables) POLines(ctx context.Context, poNumbers []string) ([]model.POLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := collect(t.poByNum, poNumbers)
	out := make([]model.POLine, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.pos[i])
	}
	return out, nil
}

// ReceiptLines implements Store.
func (t *Tables) ReceiptLines(ctx context.Context, poNumbers []string) ([]model.ReceiptLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := collect(t.rcByNum, poNumbers)
	out := make([]model.ReceiptLine, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.receipts[i])
	}
	return out, nil
}

// Counts reports the number of rows per dataset.
func (t *Tables) Counts() map[string]int {
	return map[string]int{
		model.DatasetInvoices:       len(t.invoices),
		model.DatasetPurchaseOrders: len(t.pos),
		model.DatasetReceipts:       len(t.receipts),
	}
}

// collect merges the row positions of the requested keys and returns them in
// dataset order, each at most once.
func collect(index map[string][]int, keys []string) []int {
	seen := make(map[int]bool)
	var rows []int
	for _, k := range keys {
		for _, i := range index[k] {
			if !seen[i] {
				seen[i] = true
				rows = append(rows, i)
			}
		}
	}
	slices.Sort(rows)
	return rows
}

func normalizeInvoiceID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
