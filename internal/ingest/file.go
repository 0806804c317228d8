package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
	FormatSHP  = "shp"
)

// FileOptions configures ImportFile. An empty Format is inferred from the
// file extension.
type FileOptions struct {
	Format  string
	Mapping Mapping
	CSV     CSVOptions
	XLSX    XLSXOptions
}

// DetectFormat maps a file extension to a supported format.
func DetectFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json", ".geojson":
		return FormatJSON, nil
	case ".shp":
		return FormatSHP, nil
	default:
		return "", eris.Errorf("ingest: unsupported file extension %q", ext)
	}
}

// ImportFile reads and maps the occurrences in path.
func ImportFile(ctx context.Context, path string, opts FileOptions) (*Result, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open csv")
		}
		defer f.Close() //nolint:errcheck

		csvOpts := opts.CSV
		if csvOpts.Delimiter == 0 && (strings.EqualFold(filepath.Ext(path), ".tsv") || filepath.Base(path) == DwCAOccurrenceFile) {
			csvOpts.Delimiter = '\t'
		}
		t, err := ReadCSV(ctx, f, csvOpts)
		if err != nil {
			return nil, err
		}
		return importTable(t, opts.Mapping, FormatCSV)
	case FormatXLSX:
		t, err := ReadXLSX(path, opts.XLSX)
		if err != nil {
			return nil, err
		}
		return importTable(t, opts.Mapping, FormatXLSX)
	case FormatJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open json")
		}
		defer f.Close() //nolint:errcheck
		return ImportJSON(f)
	case FormatSHP:
		t, err := ReadShapefile(path)
		if err != nil {
			return nil, err
		}
		m := opts.Mapping
		m.LatColumn, m.LonColumn = ShapeLatColumn, ShapeLonColumn
		return importTable(t, m, FormatSHP)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", format)
	}
}

func importTable(t *Table, override Mapping, source string) (*Result, error) {
	m, err := DetectMapping(t.Headers, override)
	if err != nil {
		return nil, err
	}
	return ImportTable(t, m, source)
}
