package evidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/records"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InvoiceLines(ctx context.Context, id string) ([]model.InvoiceLine, error) {
	args := m.Called(ctx, id)
	lines, _ := args.Get(0).([]model.InvoiceLine)
	return lines, args.Error(1)
}

func (m *mockStore) POLines(ctx context.Context, pos []string) ([]model.POLine, error) {
	args := m.Called(ctx, pos)
	lines, _ := args.Get(0).([]model.POLine)
	return lines, args.Error(1)
}

func (m *mockStore) ReceiptLines(ctx context.Context, pos []string) ([]model.ReceiptLine, error) {
	args := m.Called(ctx, pos)
	lines, _ := args.Get(0).([]model.ReceiptLine)
	return lines, args.Error(1)
}

func fixture() *records.Tables {
	return records.NewTables(
		[]model.InvoiceLine{
			{InvoiceID: "INV-7", PONumber: "PO-2", Item: "Bolt", Quantity: 10, UnitPrice: 1, Amount: 10, Row: 0},
			{InvoiceID: "INV-8", PONumber: "PO-9", Item: "Nut", Row: 1},
			{InvoiceID: "INV-7", PONumber: "PO-1", Item: "Nut", Quantity: 5, UnitPrice: 2, Amount: 10, Row: 2},
			{InvoiceID: "INV-7", PONumber: "PO-2", Item: "Washer", Quantity: 1, UnitPrice: 1, Amount: 1, Row: 3},
		},
		[]model.POLine{
			{PONumber: "PO-1", Item: "Nut", Quantity: 5, UnitPrice: 2, Amount: 10, Row: 0},
			{PONumber: "PO-9", Item: "Nut", Row: 1},
			{PONumber: "PO-2", Item: "Bolt", Quantity: 10, UnitPrice: 1, Amount: 10, Row: 2},
		},
		[]model.ReceiptLine{
			{ReceiptID: "R-1", PONumber: "PO-2", Item: "Bolt", QuantityReceived: 10, Row: 0},
			{ReceiptID: "R-2", PONumber: "PO-9", Item: "Nut", Row: 1},
		},
	)
}

func TestAssemble_CollectsAllRelatedLines(t *testing.T) {
	ev, err := NewAssembler(fixture()).Assemble(context.Background(), "inv-7")
	require.NoError(t, err)

	assert.True(t, ev.Found())
	assert.Len(t, ev.InvoiceLines, 3)
	assert.Len(t, ev.POLines, 2)
	assert.Len(t, ev.Receipts, 1)
	assert.Empty(t, ev.Auxiliary)

	assert.Equal(t, []int{0, 2, 3}, ev.Rows(model.DatasetInvoices))
	assert.Equal(t, []int{0, 2}, ev.Rows(model.DatasetPurchaseOrders))
	assert.Equal(t, []int{0}, ev.Rows(model.DatasetReceipts))
	assert.Equal(t, "invoices rows=[0 2 3]; purchase_orders rows=[0 2]; receipts rows=[0]", ev.SourcesLine())
}

func TestAssemble_NotFound(t *testing.T) {
	ev, err := NewAssembler(fixture()).Assemble(context.Background(), "INV-404")
	require.NoError(t, err)

	assert.False(t, ev.Found())
	assert.Empty(t, ev.POLines)
	assert.Empty(t, ev.Receipts)
	assert.Equal(t, "invoices rows=[]; purchase_orders rows=[]; receipts rows=[]", ev.SourcesLine())
}

func TestAssemble_DistinctPONumbersFirstSeen(t *testing.T) {
	store := new(mockStore)
	lines := []model.InvoiceLine{
		{InvoiceID: "INV-1", PONumber: "PO-B"},
		{InvoiceID: "INV-1", PONumber: "PO-A"},
		{InvoiceID: "INV-1", PONumber: "PO-B"},
	}
	store.On("InvoiceLines", mock.Anything, "INV-1").Return(lines, nil)
	store.On("POLines", mock.Anything, []string{"PO-B", "PO-A"}).Return([]model.POLine{}, nil)
	store.On("ReceiptLines", mock.Anything, []string{"PO-B", "PO-A"}).Return([]model.ReceiptLine{}, nil)

	_, err := NewAssembler(store).Assemble(context.Background(), "INV-1")
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestAssemble_StoreErrorPropagates(t *testing.T) {
	store := new(mockStore)
	store.On("InvoiceLines", mock.Anything, "INV-1").Return(nil, errors.New("disk gone"))

	_, err := NewAssembler(store).Assemble(context.Background(), "INV-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestAssemble_POErrorPropagates(t *testing.T) {
	store := new(mockStore)
	store.On("InvoiceLines", mock.Anything, "INV-1").Return([]model.InvoiceLine{{InvoiceID: "INV-1", PONumber: "PO-1"}}, nil)
	store.On("POLines", mock.Anything, []string{"PO-1"}).Return(nil, errors.New("timeout"))

	_, err := NewAssembler(store).Assemble(context.Background(), "INV-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "po lines")
}

func TestAttachAuxiliary_ReturnsNewBundle(t *testing.T) {
	ev, err := NewAssembler(fixture()).Assemble(context.Background(), "INV-7")
	require.NoError(t, err)

	signals := []model.Signal{{Title: "vendor", Reference: "ref", Snippet: "<b>anything</b>"}}
	got := AttachAuxiliary(ev, signals)

	assert.Empty(t, ev.Auxiliary)
	assert.Equal(t, signals, got.Auxiliary)
	assert.Equal(t, ev.InvoiceLines, got.InvoiceLines)

	got.Sources[0].Rows[0] = 99
	got.InvoiceLines[0].Item = "changed"
	assert.Equal(t, 0, ev.Sources[0].Rows[0])
	assert.Equal(t, "Bolt", ev.InvoiceLines[0].Item)
}

func TestAttachAuxiliary_Empty(t *testing.T) {
	got := AttachAuxiliary(model.Evidence{InvoiceID: "INV-1"}, nil)
	assert.Empty(t, got.Auxiliary)
	assert.Equal(t, "INV-1", got.InvoiceID)
}
