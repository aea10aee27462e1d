package records

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-recon/internal/fetcher"
	"github.com/sells-group/invoice-recon/internal/model"
)

// ErrDatasetMissing is returned by Load when a required dataset file does not
// exist in the data directory.
var ErrDatasetMissing = eris.New("records: dataset missing")

// LoadOptions configures Load.
type LoadOptions struct {
	Charset string
}

// datasetFiles maps each dataset to the base names accepted for it.
var datasetFiles = map[string][]string{
	model.DatasetInvoices:       {"invoices"},
	model.DatasetPurchaseOrders: {"purchase_orders", "pos"},
	model.DatasetReceipts:       {"receipts"},
}

var extensions = []string{".csv", ".xlsx"}

// Locate returns the file backing a dataset in dir.
func Locate(dir, dataset string) (string, error) {
	names, ok := datasetFiles[dataset]
	if !ok {
		return "", eris.Errorf("records: unknown dataset %q", dataset)
	}
	for _, name := range names {
		for _, ext := range extensions {
			p := filepath.Join(dir, name+ext)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", eris.Wrapf(ErrDatasetMissing, "records: no %s file in %s", dataset, dir)
}

// Load reads the three datasets from dir concurrently and indexes them.
func Load(ctx context.Context, dir string, opts LoadOptions) (*Tables, error) {
	start := time.Now()
	log := zap.L().With(zap.String("dir", dir))

	paths := make(map[string]string, len(model.Datasets))
	for _, ds := range model.Datasets {
		p, err := Locate(dir, ds)
		if err != nil {
			return nil, err
		}
		paths[ds] = p
	}

	var (
		invoices []model.InvoiceLine
		pos      []model.POLine
		receipts []model.ReceiptLine
	)
	fo := fetcher.Options{Charset: opts.Charset}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tbl, err := fetcher.ReadTable(gctx, paths[model.DatasetInvoices], fo)
		if err != nil {
			return err
		}
		invoices, err = parseInvoices(tbl)
		return err
	})
	g.Go(func() error {
		tbl, err := fetcher.ReadTable(gctx, paths[model.DatasetPurchaseOrders], fo)
		if err != nil {
			return err
		}
		pos, err = parsePOLines(tbl)
		return err
	})
	g.Go(func() error {
		tbl, err := fetcher.ReadTable(gctx, paths[model.DatasetReceipts], fo)
		if err != nil {
			return err
		}
		receipts, err = parseReceipts(tbl)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := NewTables(invoices, pos, receipts)
	log.Info("records: datasets loaded",
		zap.Int("invoices", len(invoices)),
		zap.Int("purchase_orders", len(pos)),
		zap.Int("receipts", len(receipts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}

// columns resolves required column names to indices.
type columns struct {
	tbl *fetcher.Table
	idx map[string]int
}

func resolve(tbl *fetcher.Table, names ...string) (*columns, error) {
	c := &columns{tbl: tbl, idx: make(map[string]int, len(names))}
	var missing []string
	for _, n := range names {
		i := tbl.Column(n)
		if i < 0 {
			missing = append(missing, n)
			continue
		}
		c.idx[n] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("records: %s: missing columns %s", filepath.Base(tbl.Path), strings.Join(missing, ", "))
	}
	return c, nil
}

func (c *columns) str(row []string, name string) string {
	i := c.idx[name]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// num parses a finite numeric cell. A blank cell is 0.
func (c *columns) num(row []string, rowIdx int, name string) (float64, error) {
	s := c.str(row, name)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "records: %s row %d: invalid %s %q", filepath.Base(c.tbl.Path), rowIdx, name, c.str(row, name))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("records: %s row %d: invalid %s %q", filepath.Base(c.tbl.Path), rowIdx, name, c.str(row, name))
	}
	return v, nil
}

func parseInvoices(tbl *fetcher.Table) ([]model.InvoiceLine, error) {
	c, err := resolve(tbl, "invoice_id", "po_number", "item", "quantity", "unit_price", "amount")
	if err != nil {
		return nil, err
	}
	out := make([]model.InvoiceLine, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		l := model.InvoiceLine{
			InvoiceID: c.str(row, "invoice_id"),
			PONumber:  c.str(row, "po_number"),
			Item:      c.str(row, "item"),
			Row:       i,
		}
		if l.Quantity, err = c.num(row, i, "quantity"); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = c.num(row, i, "unit_price"); err != nil {
			return nil, err
		}
		if l.Amount, err = c.num(row, i, "amount"); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func parsePOLines(tbl *fetcher.Table) ([]model.POLine, error) {
	c, err := resolve(tbl, "po_number", "item", "quantity", "unit_price", "amount")
	if err != nil {
		return nil, err
	}
	out := make([]model.POLine, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		l := model.POLine{
			PONumber: c.str(row, "po_number"),
			Item:     c.str(row, "item"),
			Row:      i,
		}
		if l.Quantity, err = c.num(row, i, "quantity"); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = c.num(row, i, "unit_price"); err != nil {
			return nil, err
		}
		if l.Amount, err = c.num(row, i, "amount"); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func parseReceipts(tbl *fetcher.Table) ([]model.ReceiptLine, error) {
	c, err := resolve(tbl, "receipt_id", "po_number", "item", "quantity_received")
	if err != nil {
		return nil, err
	}
	out := make([]model.ReceiptLine, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		l := model.ReceiptLine{
			ReceiptID: c.str(row, "receipt_id"),
			PONumber:  c.str(row, "po_number"),
			Item:      c.str(row, "item"),
			Row:       i,
		}
		if l.QuantityReceived, err = c.num(row, i, "quantity_received"); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
