package model

import (
	"fmt"
	"strings"
)

// Signal is an auxiliary (web, vendor or compliance) result attached to an
// evidence bundle. Its content is never interpreted by the core.
type Signal struct {
	Title     string `json:"title"`
	Reference string `json:"reference"`
	Snippet   string `json:"snippet"`
}

// SourceRef names the rows of one dataset that contributed to a bundle.
type SourceRef struct {
	Dataset string `json:"dataset"`
	Rows    []int  `json:"rows"`
}

// Evidence is the read-only snapshot of matched records for one invoice.
// It is built once per request and must not be mutated after assembly.
type Evidence struct {
	InvoiceID    string        `json:"invoice_id"`
	InvoiceLines []InvoiceLine `json:"invoice_lines"`
	POLines      []POLine      `json:"po_lines"`
	Receipts     []ReceiptLine `json:"receipts"`
	Auxiliary    []Signal      `json:"auxiliary"`
	Sources      []SourceRef   `json:"sources"`
}

// Found reports whether the invoice had at least one line in the record store.
func (e Evidence) Found() bool { return len(e.InvoiceLines) > 0 }

// Rows returns the row indices recorded for a dataset.
func (e Evidence) Rows(dataset string) []int {
	for _, s := range e.Sources {
		if s.Dataset == dataset {
			return s.Rows
		}
	}
	return nil
}

// SourcesLine renders the citation used in the "Sources" section of an
// explanation, e.g. "invoices rows=[0 1]; purchase_orders rows=[3]; receipts rows=[]".
func (e Evidence) SourcesLine() string {
	parts := make([]string, 0, len(Datasets))
	for _, ds := range Datasets {
		rows := e.Rows(ds)
		if rows == nil {
			rows = []int{}
		}
		parts = append(parts, fmt.Sprintf("%s rows=%v", ds, rows))
	}
	return strings.Join(parts, "; ")
}

// Counts summarises the size of the bundle for audit payloads.
func (e Evidence) Counts() map[string]int {
	return map[string]int{
		"invoice_lines": len(e.InvoiceLines),
		"po_lines":      len(e.POLines),
		"receipts":      len(e.Receipts),
		"auxiliary":     len(e.Auxiliary),
	}
}

// EvidenceSummary is the structured view handed to the synthesis collaborator.
type EvidenceSummary struct {
	InvoiceLines []InvoiceLine `json:"invoice_lines"`
	POLines      []POLine      `json:"po_lines"`
	Receipts     []ReceiptLine `json:"receipts"`
	Auxiliary    []Signal      `json:"auxiliary"`
	Sources      string        `json:"sources"`
}

// Summary builds the synthesis view of the bundle.
func (e Evidence) Summary() EvidenceSummary {
	return EvidenceSummary{
		InvoiceLines: e.InvoiceLines,
		POLines:      e.POLines,
		Receipts:     e.Receipts,
		Auxiliary:    e.Auxiliary,
		Sources:      e.SourcesLine(),
	}
}
