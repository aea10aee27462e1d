//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/audit"
	"github.com/sells-group/invoice-recon/internal/evidence"
	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/pipeline"
	"github.com/sells-group/invoice-recon/internal/records"
	"github.com/sells-group/invoice-recon/internal/store"
)

// newTestPipeline builds an offline pipeline over a small fixture: INV-123
// is overbilled and short-received, INV-125 matches.
func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	tables := records.NewTables(
		[]model.InvoiceLine{
			{InvoiceID: "INV-123", PONumber: "PO-900", Item: "Widget A", Quantity: 10, UnitPrice: 55, Amount: 550, Row: 0},
			{InvoiceID: "INV-125", PONumber: "PO-902", Item: "Cable", Quantity: 100, UnitPrice: 2, Amount: 200, Row: 1},
		},
		[]model.POLine{
			{PONumber: "PO-900", Item: "Widget A", Quantity: 10, UnitPrice: 50, Amount: 500, Row: 0},
			{PONumber: "PO-902", Item: "Cable", Quantity: 100, UnitPrice: 2, Amount: 200, Row: 1},
		},
		[]model.ReceiptLine{
			{ReceiptID: "R-1", PONumber: "PO-900", Item: "Widget A", QuantityReceived: 6, Row: 0},
			{ReceiptID: "R-2", PONumber: "PO-902", Item: "Cable", QuantityReceived: 100, Row: 1},
		},
	)

	trail, err := audit.New(t.TempDir(), audit.LayoutPerSession)
	require.NoError(t, err)

	return pipeline.New(pipeline.Deps{
		Assembler: evidence.NewAssembler(tables),
		Trail:     trail,
		Store:     store.NewMemory(),
	})
}
