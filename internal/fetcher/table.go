package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header plus data rows read from a CSV or XLSX file.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a table from raw records; the first record is the header.
func NewTable(path string, records [][]string) *Table {
	t := &Table{Path: path, index: make(map[string]int)}
	if len(records) == 0 {
		return t
	}
	t.Header = records[0]
	t.Rows = records[1:]
	for i, name := range t.Header {
		name = strings.TrimSpace(name)
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	return t
}

// Has reports whether the header contains column name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Value returns column name of row i, or "" when the column or cell is absent.
func (t *Table) Value(i int, name string) string {
	j, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.Rows) || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// ReadTable reads a .csv or .xlsx file by extension. XLSX files are read
// from their first sheet.
func ReadTable(ctx context.Context, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err := ReadXLSX(path, XLSXOptions{TrimSpace: true})
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
		return NewTable(path, records), nil
	case ".csv", ".tsv", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		defer f.Close()

		opts := CSVOptions{TrimSpace: true, LazyQuotes: true}
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		records, err := ReadCSV(ctx, f, opts)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
		return NewTable(path, records), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
}
