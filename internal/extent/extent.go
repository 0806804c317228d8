// Package extent computes Extent of Occurrence and Area of Occupancy results
// and decides whether a stored result is stale.
package extent

import (
	"time"

	"github.com/sells-group/extent-cli/internal/fingerprint"
	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// ErrInvalidCellSize is returned by ComputeAOO for a non-finite or
// non-positive cell size.
var ErrInvalidCellSize = geo.ErrInvalidCellSize

// Engine computes EOO and AOO results. The zero value is not usable; call
// NewEngine.
type Engine struct {
	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewEngine returns an Engine stamping results with the current UTC time.
func NewEngine() *Engine {
	return &Engine{nowFunc: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of e that stamps results using now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{nowFunc: now}
}

var defaultEngine = NewEngine()

// ComputeEOO computes EOO with the default engine.
func ComputeEOO(occurrences []model.Occurrence) *model.EooResult {
	return defaultEngine.ComputeEOO(occurrences)
}

// ComputeAOO computes AOO with the default engine.
func ComputeAOO(occurrences []model.Occurrence, cellSizeMeters float64) (*model.AooResult, error) {
	return defaultEngine.ComputeAOO(occurrences, cellSizeMeters)
}

// ComputeEOO returns the convex hull area of the computable occurrences.
// Fewer than three distinct points yield a zero-area result with no hull.
func (e *Engine) ComputeEOO(occurrences []model.Occurrence) *model.EooResult {
	computable := model.SelectComputable(occurrences)
	result := &model.EooResult{
		PointsUsed: len(computable),
		InputHash:  fingerprint.EOO(computable),
		ComputedAt: e.nowFunc(),
	}

	hull := geo.ConvexHull(positions(computable))
	if hull == nil {
		return result
	}

	result.Hull = geo.RingFromPolygon(hull.Polygon)
	result.AreaKm2 = hull.AreaKm2
	return result
}

// ComputeAOO returns the occupied-cell area of the computable occurrences
// on a grid of cellSizeMeters. Zero computable points yield an empty grid.
func (e *Engine) ComputeAOO(occurrences []model.Occurrence, cellSizeMeters float64) (*model.AooResult, error) {
	if err := geo.ValidateCellSize(cellSizeMeters); err != nil {
		return nil, err
	}

	computable := model.SelectComputable(occurrences)
	result := &model.AooResult{
		CellSizeMeters: cellSizeMeters,
		Grid:           []model.GridCell{},
		PointsUsed:     len(computable),
		InputHash:      fingerprint.AOO(computable, cellSizeMeters),
		ComputedAt:     e.nowFunc(),
	}
	if len(computable) == 0 {
		return result, nil
	}

	cells, err := geo.OccupiedCells(positions(computable), cellSizeMeters)
	if err != nil {
		return nil, err
	}

	result.CellCount = len(cells)
	result.AreaKm2 = float64(result.CellCount) * cellSizeMeters * cellSizeMeters / 1e6
	result.Grid = geo.BuildGrid(cells, cellSizeMeters)
	return result, nil
}

func positions(occurrences []model.Occurrence) []model.LonLat {
	out := make([]model.LonLat, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, model.LonLat{Lon: o.Lon, Lat: o.Lat})
	}
	return out
}
