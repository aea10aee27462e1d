package records

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeDatasets(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "invoices.csv", "invoice_id,po_number,item,quantity,unit_price,amount\n"+
		"INV-123,PO-1,Widget,10,\"$1,000.00\",10000\n"+
		"INV-123,PO-1,Gadget,,5,0\n")
	writeFile(t, dir, "pos.csv", "po_number,item,quantity,unit_price,amount\nPO-1,Widget,10,1000,10000\n")
	writeFile(t, dir, "receipts.csv", "receipt_id,po_number,item,quantity_received\nR-1,PO-1,Widget,10\n")
}

func TestLoad_CSV(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)

	tbl, err := Load(context.Background(), dir, LoadOptions{})
	require.NoError(t, err)

	lines, err := tbl.InvoiceLines(context.Background(), "inv-123")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.InDelta(t, 1000.0, lines[0].UnitPrice, 1e-9)
	assert.Equal(t, 0.0, lines[1].Quantity)
	assert.Equal(t, 1, lines[1].Row)

	pos, err := tbl.POLines(context.Background(), []string{"PO-1"})
	require.NoError(t, err)
	assert.Len(t, pos, 1)
}

func TestLoad_PurchaseOrdersFileName(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)
	require.NoError(t, os.Rename(filepath.Join(dir, "pos.csv"), filepath.Join(dir, "purchase_orders.csv")))

	_, err := Load(context.Background(), dir, LoadOptions{})
	assert.NoError(t, err)
}

func TestLoad_XLSX(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "receipts.csv")))

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("receipts")
	require.NoError(t, err)
	for _, r := range [][]string{{"receipt_id", "po_number", "item", "quantity_received"}, {"R-9", "PO-1", "Widget", "7"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(filepath.Join(dir, "receipts.xlsx")))

	tbl, err := Load(context.Background(), dir, LoadOptions{})
	require.NoError(t, err)

	rc, err := tbl.ReceiptLines(context.Background(), []string{"PO-1"})
	require.NoError(t, err)
	require.Len(t, rc, 1)
	assert.Equal(t, "R-9", rc[0].ReceiptID)
	assert.InDelta(t, 7.0, rc[0].QuantityReceived, 1e-9)
}

func TestLoad_MissingDataset(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "receipts.csv")))

	_, err := Load(context.Background(), dir, LoadOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDatasetMissing))
}

func TestLoad_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)
	writeFile(t, dir, "pos.csv", "po_number,item,quantity\nPO-1,Widget,10\n")

	_, err := Load(context.Background(), dir, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns unit_price, amount")
}

func TestLoad_InvalidNumber(t *testing.T) {
	dir := t.TempDir()
	writeDatasets(t, dir)
	writeFile(t, dir, "receipts.csv", "receipt_id,po_number,item,quantity_received\nR-1,PO-1,Widget,lots\n")

	_, err := Load(context.Background(), dir, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quantity_received")
}

func TestLoad_NonFiniteNumber(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Infinity", "+inf"} {
		t.Run(v, func(t *testing.T) {
			dir := t.TempDir()
			writeDatasets(t, dir)
			writeFile(t, dir, "invoices.csv", "invoice_id,po_number,item,quantity,unit_price,amount\nINV-1,PO-1,A,1,"+v+",10\n")

			_, err := Load(context.Background(), dir, LoadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid unit_price")
		})
	}
}

func TestLocate_UnknownDataset(t *testing.T) {
	_, err := Locate(t.TempDir(), "vendors")
	assert.Error(t, err)
}
