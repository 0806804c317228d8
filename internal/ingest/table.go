// Package ingest turns occurrence files (CSV, XLSX, JSON, GeoJSON) into
// normalized occurrences with per-row rejection reasons.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a header row plus records keyed by header position.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Record returns row i as a header-keyed map. Missing trailing cells are "".
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Headers))
	row := t.Rows[i]
	for j, h := range t.Headers {
		if j < len(row) {
			rec[h] = strings.TrimSpace(row[j])
		} else {
			rec[h] = ""
		}
	}
	return rec
}

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // 0 = none
}

// ReadCSV reads a CSV with a header row. Blank lines are skipped.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	t := &Table{}
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if t.Headers == nil {
			t.Headers = trimAll(record)
			continue
		}
		if blank(record) {
			continue
		}
		t.Rows = append(t.Rows, record)
	}
	if t.Headers == nil {
		return nil, eris.New("csv: missing header row")
	}
	return t, nil
}

// XLSXOptions configures ReadXLSX.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads the first row of a sheet as headers and the rest as records.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if t.Headers == nil {
			t.Headers = trimAll(cells)
			continue
		}
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if t.Headers == nil {
		return nil, eris.New("xlsx: sheet is empty")
	}
	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
