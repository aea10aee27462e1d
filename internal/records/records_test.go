package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/model"
)

func sampleTables() *Tables {
	return NewTables(
		[]model.InvoiceLine{
			{InvoiceID: "INV-1", PONumber: "PO-1", Item: "A", Row: 0},
			{InvoiceID: "INV-2", PONumber: "PO-2", Item: "B", Row: 1},
			{InvoiceID: "inv-1", PONumber: "PO-3", Item: "C", Row: 2},
		},
		[]model.POLine{
			{PONumber: "PO-3", Item: "C", Row: 0},
			{PONumber: "PO-1", Item: "A", Row: 1},
			{PONumber: "PO-2", Item: "B", Row: 2},
		},
		[]model.ReceiptLine{
			{ReceiptID: "R-1", PONumber: "PO-1", Item: "A", Row: 0},
			{ReceiptID: "R-2", PONumber: "PO-1", Item: "A", Row: 1},
		},
	)
}

func TestTables_InvoiceLinesCaseInsensitive(t *testing.T) {
	tbl := sampleTables()

	lines, err := tbl.InvoiceLines(context.Background(), " Inv-1 ")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 0, lines[0].Row)
	assert.Equal(t, 2, lines[1].Row)
}

func TestTables_InvoiceLinesUnknown(t *testing.T) {
	lines, err := sampleTables().InvoiceLines(context.Background(), "INV-999")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTables_POLinesDatasetOrder(t *testing.T) {
	lines, err := sampleTables().POLines(context.Background(), []string{"PO-1", "PO-3", "PO-1"})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "PO-3", lines[0].PONumber)
	assert.Equal(t, "PO-1", lines[1].PONumber)
}

func TestTables_POLinesExactMatch(t *testing.T) {
	lines, err := sampleTables().POLines(context.Background(), []string{"po-1"})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTables_ReceiptLines(t *testing.T) {
	lines, err := sampleTables().ReceiptLines(context.Background(), []string{"PO-1"})
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	none, err := sampleTables().ReceiptLines(context.Background(), []string{"PO-2"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTables_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sampleTables().InvoiceLines(ctx, "INV-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTables_Counts(t *testing.T) {
	assert.Equal(t, map[string]int{
		model.DatasetInvoices:       3,
		model.DatasetPurchaseOrders: 3,
		model.DatasetReceipts:       2,
	}, sampleTables().Counts())
}
