// Package fetcher reads tabular datasets from CSV and XLSX files.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header row plus its data rows.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
}

// Column returns the index of the named column, matched case-insensitively
// after trimming, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Options configures ReadTable.
type Options struct {
	// Charset names the CSV encoding (any WHATWG label, e.g. "windows-1252").
	// Empty means UTF-8. Ignored for XLSX.
	Charset string
	// Sheet selects the XLSX sheet by name; empty means the first sheet.
	Sheet string
}

// ReadTable reads a whole .csv or .xlsx file. The first row is the header.
func ReadTable(ctx context.Context, path string, opts Options) (*Table, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSVFile(ctx, path, opts)
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet})
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", path)
	}
	if err != nil {
		return nil, err
	}

	t := &Table{Path: path}
	if len(rows) == 0 {
		return t, nil
	}
	t.Header = rows[0]
	t.Rows = rows[1:]
	return t, nil
}

func readCSVFile(ctx context.Context, path string, opts Options) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close()

	rowCh, errCh := StreamCSV(ctx, f, CSVOptions{Charset: opts.Charset, TrimSpace: true})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", path)
	}
	return rows, nil
}
