// Package export writes project occurrences and results as GeoJSON,
// shapefiles, CSV, and a portable project JSON envelope.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// EooSummary carries the EOO result fields. Hull is null when fewer than
// three distinct points were usable.
type EooSummary struct {
	AreaKm2    float64    `json:"area_km2"`
	Hull       model.Ring `json:"hull"`
	PointsUsed int        `json:"points_used"`
	InputHash  string     `json:"input_hash"`
	ComputedAt time.Time  `json:"computed_at"`
}

// AooSummary carries the AOO result fields that do not live on grid cells.
type AooSummary struct {
	AreaKm2        float64   `json:"area_km2"`
	CellCount      int       `json:"cell_count"`
	CellSizeMeters float64   `json:"cell_size_meters"`
	PointsUsed     int       `json:"points_used"`
	InputHash      string    `json:"input_hash"`
	ComputedAt     time.Time `json:"computed_at"`
}

// GeoExport bundles the occurrence points with the EOO hull and AOO grid.
// EooHull is nil when no hull exists; AooGrid is nil when no cell is
// occupied. Eoo and Aoo are set whenever a result is stored.
type GeoExport struct {
	Occurrences *geojson.FeatureCollection `json:"occurrences"`
	Eoo         *EooSummary                `json:"eoo,omitempty"`
	EooHull     *geojson.Feature           `json:"eoo_hull,omitempty"`
	AooGrid     *geojson.FeatureCollection `json:"aoo_grid,omitempty"`
	Aoo         *AooSummary                `json:"aoo,omitempty"`
}

// BuildGeoJSON exports the valid occurrences of p as points plus its stored
// results.
func BuildGeoJSON(p *model.Project) *GeoExport {
	out := &GeoExport{Occurrences: &geojson.FeatureCollection{Features: []*geojson.Feature{}}}

	for _, o := range p.Occurrences {
		if !model.ValidateLatLon(o.Lat, o.Lon).OK {
			continue
		}
		out.Occurrences.Features = append(out.Occurrences.Features, &geojson.Feature{
			ID:       o.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{o.Lon, o.Lat}),
			Properties: map[string]any{
				"id":          o.ID,
				"label":       nullable(o.Label),
				"source":      nullable(o.Source),
				"calc_status": string(o.CalcStatus),
			},
		})
	}

	if eoo := p.Results.Eoo; eoo != nil {
		out.Eoo = &EooSummary{
			AreaKm2:    eoo.AreaKm2,
			PointsUsed: eoo.PointsUsed,
			InputHash:  eoo.InputHash,
			ComputedAt: eoo.ComputedAt,
		}
	}
	if eoo := p.Results.Eoo; eoo.HasHull() {
		out.Eoo.Hull = eoo.Hull
		out.EooHull = &geojson.Feature{
			Geometry: geo.PolygonFromRing(eoo.Hull),
			Properties: map[string]any{
				"area_km2":    eoo.AreaKm2,
				"points_used": eoo.PointsUsed,
				"input_hash":  eoo.InputHash,
				"computed_at": eoo.ComputedAt,
			},
		}
	}

	if aoo := p.Results.Aoo; aoo != nil {
		out.Aoo = &AooSummary{
			AreaKm2:        aoo.AreaKm2,
			CellCount:      aoo.CellCount,
			CellSizeMeters: aoo.CellSizeMeters,
			PointsUsed:     aoo.PointsUsed,
			InputHash:      aoo.InputHash,
			ComputedAt:     aoo.ComputedAt,
		}
		if len(aoo.Grid) > 0 {
			out.AooGrid = &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(aoo.Grid))}
			for _, c := range aoo.Grid {
				out.AooGrid.Features = append(out.AooGrid.Features, &geojson.Feature{
					Geometry:   geo.PolygonFromRing(c.Ring),
					Properties: map[string]any{"cx": c.CX, "cy": c.CY},
				})
			}
		}
	}

	return out
}

// WriteGeoJSON encodes BuildGeoJSON(p) to w.
func WriteGeoJSON(w io.Writer, p *model.Project) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildGeoJSON(p)); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
