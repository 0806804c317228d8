package ingest

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Columns ReadShapefile adds for the point geometry.
const (
	ShapeLatColumn = "shape_lat"
	ShapeLonColumn = "shape_lon"
)

// ReadShapefile reads a point shapefile into a Table: the DBF attributes
// followed by ShapeLatColumn and ShapeLonColumn. Non-point records are
// skipped.
func ReadShapefile(path string) (*Table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shp: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	t := &Table{Headers: make([]string, 0, len(fields)+2)}
	for _, f := range fields {
		t.Headers = append(t.Headers, strings.TrimRight(f.String(), "\x00"))
	}
	t.Headers = append(t.Headers, ShapeLatColumn, ShapeLonColumn)

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok || pt == nil {
			skipped++
			continue
		}
		row := make([]string, 0, len(t.Headers))
		for i := range fields {
			row = append(row, strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00")))
		}
		row = append(row,
			strconv.FormatFloat(pt.Y, 'f', -1, 64),
			strconv.FormatFloat(pt.X, 'f', -1, 64))
		t.Rows = append(t.Rows, row)
	}

	if skipped > 0 {
		zap.L().Debug("ingest: skipped non-point shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return t, nil
}
