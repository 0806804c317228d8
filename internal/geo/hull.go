package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/extent-cli/internal/model"
)

// MinHullPoints is the fewest distinct points that can enclose an area.
const MinHullPoints = 3

// Hull is a convex hull in lon/lat with its planar area.
type Hull struct {
	Polygon *geom.Polygon
	AreaKm2 float64
}

// ConvexHull computes the convex hull of points, treating lon/lat as a plane.
// It returns nil when there are fewer than MinHullPoints distinct points or
// when the points are collinear.
func ConvexHull(points []model.LonLat) *Hull {
	if countDistinct(points) < MinHullPoints {
		return nil
	}

	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}

	hull, ok := xy.ConvexHullFlat(geom.XY, flat).(*geom.Polygon)
	if !ok || hull.NumLinearRings() == 0 {
		return nil
	}
	poly := PolygonFromRing(closeRing(RingFromPolygon(hull)))

	area := PlanarAreaKm2(poly)
	if area <= 0 {
		return nil
	}
	return &Hull{Polygon: poly, AreaKm2: area}
}

// PlanarAreaKm2 projects the exterior ring of p to Web Mercator and returns
// its area in km². Degenerate or non-finite results report 0.
func PlanarAreaKm2(p *geom.Polygon) float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return 0
	}

	coords := p.LinearRing(0).Coords()
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		x, y := ToPlanar(c.X(), c.Y())
		flat = append(flat, x, y)
	}

	projected := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	area := math.Abs(projected.Area()) / 1e6
	if math.IsNaN(area) || math.IsInf(area, 0) {
		return 0
	}
	return area
}

// closeRing appends the first position if the ring is open.
func closeRing(r model.Ring) model.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

func countDistinct(points []model.LonLat) int {
	seen := make(map[model.LonLat]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
		if len(seen) >= MinHullPoints {
			break
		}
	}
	return len(seen)
}
