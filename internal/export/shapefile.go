package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/model"
)

// Shapefile layer suffixes.
const (
	LayerPoints = "points"
	LayerEOO    = "eoo"
	LayerAOO    = "aoo"
)

// WriteShapefiles writes one shapefile per available layer into dir, named
// <base>_<layer>.shp, and returns the .shp paths written. The hull and grid
// layers are omitted when there is nothing to draw.
func WriteShapefiles(dir, base string, p *model.Project) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create shapefile dir")
	}

	var paths []string

	points := filepath.Join(dir, base+"_"+LayerPoints+".shp")
	if err := writePoints(points, p.Occurrences); err != nil {
		return nil, err
	}
	paths = append(paths, points)

	if eoo := p.Results.Eoo; eoo.HasHull() {
		path := filepath.Join(dir, base+"_"+LayerEOO+".shp")
		if err := writeHull(path, eoo); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	if aoo := p.Results.Aoo; aoo != nil && len(aoo.Grid) > 0 {
		path := filepath.Join(dir, base+"_"+LayerAOO+".shp")
		if err := writeGrid(path, aoo); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func writePoints(path string, occurrences []model.Occurrence) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.StringField("ID", 64),
		shp.StringField("LABEL", 128),
		shp.StringField("SOURCE", 16),
		shp.StringField("STATUS", 8),
	})

	row := 0
	for _, o := range occurrences {
		if !model.ValidateLatLon(o.Lat, o.Lon).OK {
			continue
		}
		w.Write(&shp.Point{X: o.Lon, Y: o.Lat})
		if err := writeAttributes(w, row, o.ID, o.Label, o.Source, string(o.CalcStatus)); err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeHull(path string, eoo *model.EooResult) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.FloatField("AREA_KM2", 18, 6),
		shp.NumberField("POINTS", 10),
		shp.StringField("HASH", 8),
		shp.StringField("COMPUTED", 25),
	})

	w.Write(polygon(eoo.Hull))
	return writeAttributes(w, 0, eoo.AreaKm2, eoo.PointsUsed, eoo.InputHash, eoo.ComputedAt.UTC().Format(time.RFC3339))
}

func writeGrid(path string, aoo *model.AooResult) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.NumberField("CX", 12),
		shp.NumberField("CY", 12),
		shp.FloatField("SIZE_M", 14, 3),
		shp.StringField("HASH", 8),
	})

	for i, c := range aoo.Grid {
		w.Write(polygon(c.Ring))
		if err := writeAttributes(w, i, int(c.CX), int(c.CY), aoo.CellSizeMeters, aoo.InputHash); err != nil {
			return err
		}
	}
	return nil
}

// writeAttributes writes values into consecutive fields of row. The writer
// accepts int, float64, and string only.
func writeAttributes(w *shp.Writer, row int, values ...any) error {
	for field, v := range values {
		if err := w.WriteAttribute(row, field, v); err != nil {
			return eris.Wrapf(err, "export: write attribute %d of row %d", field, row)
		}
	}
	return nil
}

// polygon converts a ring to a shapefile polygon. Shapefile outer rings run
// clockwise.
func polygon(r model.Ring) *shp.Polygon {
	pts := make([]shp.Point, len(r))
	for i, p := range r {
		pts[i] = shp.Point{X: p.Lon, Y: p.Lat}
	}
	if signedArea(pts) > 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
	return &poly
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(pts); i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}
