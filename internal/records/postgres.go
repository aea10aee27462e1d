package records

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/db"
	"github.com/sells-group/invoice-recon/internal/model"
)

// PostgresStore serves the datasets from PostgreSQL tables populated by
// Import. It is safe for concurrent use.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore over pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS invoices (
	row_index  INTEGER PRIMARY KEY,
	invoice_id TEXT NOT NULL,
	po_number  TEXT NOT NULL,
	item       TEXT NOT NULL,
	quantity   DOUBLE PRECISION NOT NULL,
	unit_price DOUBLE PRECISION NOT NULL,
	amount     DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_orders (
	row_index  INTEGER PRIMARY KEY,
	po_number  TEXT NOT NULL,
	item       TEXT NOT NULL,
	quantity   DOUBLE PRECISION NOT NULL,
	unit_price DOUBLE PRECISION NOT NULL,
	amount     DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS receipts (
	row_index         INTEGER PRIMARY KEY,
	receipt_id        TEXT NOT NULL,
	po_number         TEXT NOT NULL,
	item              TEXT NOT NULL,
	quantity_received DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_invoice_id ON invoices(upper(invoice_id));
CREATE INDEX IF NOT EXISTS idx_purchase_orders_po_number ON purchase_orders(po_number);
CREATE INDEX IF NOT EXISTS idx_receipts_po_number ON receipts(po_number);
`

// Migrate creates the dataset tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "records: migrate")
}

var (
	invoiceColumns = []string{"row_index", "invoice_id", "po_number", "item", "quantity", "unit_price", "amount"}
	poColumns      = []string{"row_index", "po_number", "item", "quantity", "unit_price", "amount"}
	receiptColumns = []string{"row_index", "receipt_id", "po_number", "item", "quantity_received"}
)

// Import replaces the contents of the dataset tables with t.
func (s *PostgresStore) Import(ctx context.Context, t *Tables) error {
	inv := make([][]any, 0, len(t.invoices))
	for _, l := range t.invoices {
		inv = append(inv, []any{l.Row, l.InvoiceID, l.PONumber, l.Item, l.Quantity, l.UnitPrice, l.Amount})
	}
	pos := make([][]any, 0, len(t.pos))
	for _, l := range t.pos {
		pos = append(pos, []any{l.Row, l.PONumber, l.Item, l.Quantity, l.UnitPrice, l.Amount})
	}
	rcs := make([][]any, 0, len(t.receipts))
	for _, l := range t.receipts {
		rcs = append(rcs, []any{l.Row, l.ReceiptID, l.PONumber, l.Item, l.QuantityReceived})
	}

	for _, tbl := range []struct {
		name string
		cols []string
		rows [][]any
	}{
		{model.DatasetInvoices, invoiceColumns, inv},
		{model.DatasetPurchaseOrders, poColumns, pos},
		{model.DatasetReceipts, receiptColumns, rcs},
	} {
		n, err := db.ReplaceTable(ctx, s.pool, tbl.name, tbl.cols, tbl.rows)
		if err != nil {
			return eris.Wrapf(err, "records: import %s", tbl.name)
		}
		zap.L().Info("records: imported dataset",
			zap.String("dataset", tbl.name),
			zap.Int64("rows", n),
		)
	}
	return nil
}

// InvoiceLines implements Store.
func (s *PostgresStore) InvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_index, invoice_id, po_number, item, quantity, unit_price, amount
		 FROM invoices WHERE upper(trim(invoice_id)) = $1 ORDER BY row_index`,
		normalizeInvoiceID(invoiceID),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "records: query invoice %s", invoiceID)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.InvoiceLine, error) {
		var l model.InvoiceLine
		err := r.Scan(&l.Row, &l.InvoiceID, &l.PONumber, &l.Item, &l.Quantity, &l.UnitPrice, &l.Amount)
		return l, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "records: scan invoice %s", invoiceID)
	}
	return out, nil
}

// POLines implements Store.
func (s *PostgresStore) POLines(ctx context.Context, poNumbers []string) ([]model.POLine, error) {
	if len(poNumbers) == 0 {
		return []model.POLine{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT row_index, po_number, item, quantity, unit_price, amount
		 FROM purchase_orders WHERE po_number = ANY($1) ORDER BY row_index`,
		poNumbers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "records: query po lines")
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.POLine, error) {
		var l model.POLine
		err := r.Scan(&l.Row, &l.PONumber, &l.Item, &l.Quantity, &l.UnitPrice, &l.Amount)
		return l, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "records: scan po lines")
	}
	return out, nil
}

// ReceiptLines implements Store.
func (s *PostgresStore) ReceiptLines(ctx context.Context, poNumbers []string) ([]model.ReceiptLine, error) {
	if len(poNumbers) == 0 {
		return []model.ReceiptLine{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT row_index, receipt_id, po_number, item, quantity_received
		 FROM receipts WHERE po_number = ANY($1) ORDER BY row_index`,
		poNumbers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "records: query receipts")
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.ReceiptLine, error) {
		var l model.ReceiptLine
		err := r.Scan(&l.Row, &l.ReceiptID, &l.PONumber, &l.Item, &l.QuantityReceived)
		return l, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "records: scan receipts")
	}
	return out, nil
}
