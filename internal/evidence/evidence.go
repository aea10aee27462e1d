// Package evidence gathers the invoice, purchase order and receipt lines that
// belong to one invoice into a bundle the verifier can score.
package evidence

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/records"
)

// Assembler builds evidence bundles from a record store. It holds no mutable
// state of its own.
type Assembler struct {
	store records.Store
}

// NewAssembler creates an Assembler over the given store.
func NewAssembler(store records.Store) *Assembler {
	return &Assembler{store: store}
}

// Assemble collects every line of the invoice, the PO lines of the purchase
// orders it references and the receipts against those orders. An unknown
// invoice yields an empty bundle, not an error. Store failures are returned.
func (a *Assembler) Assemble(ctx context.Context, invoiceID string) (model.Evidence, error) {
	ev := model.Evidence{InvoiceID: invoiceID}

	invLines, err := a.store.InvoiceLines(ctx, invoiceID)
	if err != nil {
		return model.Evidence{}, eris.Wrapf(err, "evidence: invoice lines for %s", invoiceID)
	}
	ev.InvoiceLines = invLines

	poNumbers := distinctPONumbers(invLines)

	var poLines []model.POLine
	var receipts []model.ReceiptLine
	if len(poNumbers) > 0 {
		if poLines, err = a.store.POLines(ctx, poNumbers); err != nil {
			return model.Evidence{}, eris.Wrapf(err, "evidence: po lines for %s", invoiceID)
		}
		if receipts, err = a.store.ReceiptLines(ctx, poNumbers); err != nil {
			return model.Evidence{}, eris.Wrapf(err, "evidence: receipts for %s", invoiceID)
		}
	}
	ev.POLines = poLines
	ev.Receipts = receipts

	ev.Sources = []model.SourceRef{
		{Dataset: model.DatasetInvoices, Rows: rowsOf(invLines, func(l model.InvoiceLine) int { return l.Row })},
		{Dataset: model.DatasetPurchaseOrders, Rows: rowsOf(poLines, func(l model.POLine) int { return l.Row })},
		{Dataset: model.DatasetReceipts, Rows: rowsOf(receipts, func(l model.ReceiptLine) int { return l.Row })},
	}
	return ev, nil
}

// AttachAuxiliary returns a copy of ev carrying the given signals. The input
// bundle is left untouched and signal content is never inspected.
func AttachAuxiliary(ev model.Evidence, signals []model.Signal) model.Evidence {
	out := ev
	out.InvoiceLines = slices.Clone(ev.InvoiceLines)
	out.POLines = slices.Clone(ev.POLines)
	out.Receipts = slices.Clone(ev.Receipts)
	out.Sources = make([]model.SourceRef, len(ev.Sources))
	for i, s := range ev.Sources {
		out.Sources[i] = model.SourceRef{Dataset: s.Dataset, Rows: slices.Clone(s.Rows)}
	}
	out.Auxiliary = append(slices.Clone(ev.Auxiliary), signals...)
	return out
}

func distinctPONumbers(lines []model.InvoiceLine) []string {
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, l := range lines {
		if l.PONumber == "" || seen[l.PONumber] {
			continue
		}
		seen[l.PONumber] = true
		out = append(out, l.PONumber)
	}
	return out
}

func rowsOf[T any](lines []T, row func(T) int) []int {
	rows := make([]int, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, row(l))
	}
	return rows
}
