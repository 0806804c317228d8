package geo

import (
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/extent-cli/internal/model"
)

// boundaryEpsilon is how close (in cell units) an index must be to an integer
// to snap onto it.
const boundaryEpsilon = 1e-9

// MinCellSizeMeters is the smallest accepted grid resolution. It keeps every
// cell index over the projected world well inside the int64 range.
const MinCellSizeMeters = 0.001

// ErrInvalidCellSize is returned for a non-finite cell size or one below
// MinCellSizeMeters.
var ErrInvalidCellSize = eris.New("geo: cellSizeMeters must be finite and >= 0.001")

// Cell identifies a grid cell by its integer Web Mercator index.
type Cell struct {
	CX int64
	CY int64
}

// Key returns the "{cx}|{cy}" identity of the cell.
func (c Cell) Key() string {
	return strconv.FormatInt(c.CX, 10) + "|" + strconv.FormatInt(c.CY, 10)
}

// ValidateCellSize checks that size is usable as a grid resolution.
func ValidateCellSize(size float64) error {
	if math.IsNaN(size) || math.IsInf(size, 0) || size < MinCellSizeMeters {
		return eris.Wrapf(ErrInvalidCellSize, "got %v", size)
	}
	return nil
}

// cellIndex bins a planar coordinate. Values within boundaryEpsilon of a cell
// edge snap to that edge so float noise cannot split points across it.
func cellIndex(meters, size float64) int64 {
	raw := meters / size
	nearest := math.Round(raw)
	if math.Abs(raw-nearest) < boundaryEpsilon {
		return int64(nearest)
	}
	return int64(math.Floor(raw))
}

// CellFor returns the cell containing the lon/lat point.
func CellFor(p model.LonLat, size float64) Cell {
	x, y := ToPlanar(p.Lon, p.Lat)
	return Cell{CX: cellIndex(x, size), CY: cellIndex(y, size)}
}

// OccupiedCells bins points into cells of size meters. Points sharing a cell
// collapse into one entry keyed by Cell.Key.
func OccupiedCells(points []model.LonLat, size float64) (map[string]Cell, error) {
	if err := ValidateCellSize(size); err != nil {
		return nil, err
	}

	cells := make(map[string]Cell, len(points))
	for _, p := range points {
		c := CellFor(p, size)
		cells[c.Key()] = c
	}
	return cells, nil
}

// CellPolygon returns the outline of cell c as a closed geographic ring,
// ordered SW, SE, NE, NW, SW.
func CellPolygon(c Cell, size float64) *geom.Polygon {
	x0 := float64(c.CX) * size
	y0 := float64(c.CY) * size
	x1 := x0 + size
	y1 := y0 + size

	swLon, swLat := ToGeographic(x0, y0)
	seLon, seLat := ToGeographic(x1, y0)
	neLon, neLat := ToGeographic(x1, y1)
	nwLon, nwLat := ToGeographic(x0, y1)

	flat := []float64{
		swLon, swLat,
		seLon, seLat,
		neLon, neLat,
		nwLon, nwLat,
		swLon, swLat,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// SortedCells returns the cells ordered by (CX, CY) ascending.
func SortedCells(cells map[string]Cell) []Cell {
	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CY < out[j].CY
	})
	return out
}

// BuildGrid returns the outline of every occupied cell in deterministic
// (CX, CY) order.
func BuildGrid(cells map[string]Cell, size float64) []model.GridCell {
	sorted := SortedCells(cells)
	grid := make([]model.GridCell, 0, len(sorted))
	for _, c := range sorted {
		grid = append(grid, model.GridCell{
			CX:   c.CX,
			CY:   c.CY,
			Ring: RingFromPolygon(CellPolygon(c, size)),
		})
	}
	return grid
}

// RingFromPolygon copies the exterior ring of p into a model.Ring.
func RingFromPolygon(p *geom.Polygon) model.Ring {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	coords := p.LinearRing(0).Coords()
	ring := make(model.Ring, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, model.LonLat{Lon: c.X(), Lat: c.Y()})
	}
	return ring
}

// PolygonFromRing builds a single-ring polygon from r.
func PolygonFromRing(r model.Ring) *geom.Polygon {
	flat := make([]float64, 0, len(r)*2)
	for _, p := range r {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}
