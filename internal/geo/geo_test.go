package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extent-cli/internal/model"
)

// ---------------------------------------------------------------------------
// Projection
// ---------------------------------------------------------------------------

func TestToPlanar_Origin(t *testing.T) {
	x, y := ToPlanar(0, 0)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	x, _ = ToPlanar(180, 0)
	assert.InDelta(t, math.Pi*EarthRadius, x, 1e-6)
}

func TestProjection_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		lon := rng.Float64()*360 - 180
		lat := rng.Float64()*2*MaxLat - MaxLat

		x, y := ToPlanar(lon, lat)
		gotLon, gotLat := ToGeographic(x, y)

		require.InDelta(t, lon, gotLon, 1e-6, "lon %v lat %v", lon, lat)
		require.InDelta(t, lat, gotLat, 1e-6, "lon %v lat %v", lon, lat)
	}
}

func TestProjection_ClampsLatitude(t *testing.T) {
	_, yPole := ToPlanar(0, 90)
	_, yMax := ToPlanar(0, MaxLat)
	assert.False(t, math.IsInf(yPole, 0))
	assert.InDelta(t, yMax, yPole, 1e-9)

	_, lat := ToGeographic(0, 1e9)
	assert.InDelta(t, MaxLat, lat, 1e-12)
	_, lat = ToGeographic(0, -1e9)
	assert.InDelta(t, -MaxLat, lat, 1e-12)
}

// ---------------------------------------------------------------------------
// Grid
// ---------------------------------------------------------------------------

func TestValidateCellSize(t *testing.T) {
	require.NoError(t, ValidateCellSize(2000))
	require.NoError(t, ValidateCellSize(MinCellSizeMeters))
	for _, bad := range []float64{0, -1, 1e-300, 0.0009, math.NaN(), math.Inf(1)} {
		err := ValidateCellSize(bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCellSize)
	}
}

func TestOccupiedCells_InvalidSize(t *testing.T) {
	_, err := OccupiedCells([]model.LonLat{{Lon: 1, Lat: 1}}, 0)
	require.Error(t, err)

	_, err = OccupiedCells([]model.LonLat{{Lon: 179.9, Lat: 85}}, 1e-300)
	assert.ErrorIs(t, err, ErrInvalidCellSize)
}

func TestOccupiedCells_SmallestSizeAtWorldEdge(t *testing.T) {
	cells, err := OccupiedCells([]model.LonLat{{Lon: 180, Lat: MaxLat}, {Lon: -180, Lat: -MaxLat}}, MinCellSizeMeters)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.Less(t, math.Abs(float64(c.CX)), 2.1e10)
		assert.Less(t, math.Abs(float64(c.CY)), 2.1e10)
		assert.NotEqual(t, int64(math.MinInt64), c.CX)
	}
}

func TestOccupiedCells_DedupesAndIgnoresOrder(t *testing.T) {
	pts := []model.LonLat{
		{Lon: -50, Lat: -10},
		{Lon: -49, Lat: -10},
		{Lon: -50, Lat: -9},
	}
	a, err := OccupiedCells(pts, 2000)
	require.NoError(t, err)
	assert.Len(t, a, 3)

	reordered := []model.LonLat{pts[2], pts[0], pts[1], pts[0]}
	b, err := OccupiedCells(reordered, 2000)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOccupiedCells_SameCellWithinSize(t *testing.T) {
	// Two points 1999 m apart along x, both inside cell [2000, 4000).
	lonA, latA := ToGeographic(2000.5, 1000)
	lonB, latB := ToGeographic(3999.5, 1000)

	cells, err := OccupiedCells([]model.LonLat{{Lon: lonA, Lat: latA}, {Lon: lonB, Lat: latB}}, 2000)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	for _, c := range cells {
		assert.Equal(t, int64(1), c.CX)
		assert.Equal(t, int64(0), c.CY)
	}
}

func TestCellIndex_SnapsBoundaryNoise(t *testing.T) {
	assert.Equal(t, int64(3), cellIndex(6000-1e-7, 2000))
	assert.Equal(t, int64(3), cellIndex(6000+1e-7, 2000))
	assert.Equal(t, int64(-3), cellIndex(-6000+1e-7, 2000))
	assert.Equal(t, int64(2), cellIndex(5999, 2000))
	assert.Equal(t, int64(-1), cellIndex(-0.5, 2000))
}

func TestCellKey(t *testing.T) {
	assert.Equal(t, "-3|12", Cell{CX: -3, CY: 12}.Key())
}

func TestCellPolygon_RingOrder(t *testing.T) {
	p := CellPolygon(Cell{CX: 0, CY: 0}, 2000)
	ring := RingFromPolygon(p)
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])

	sw, se, ne, nw := ring[0], ring[1], ring[2], ring[3]
	assert.InDelta(t, 0, sw.Lon, 1e-12)
	assert.InDelta(t, 0, sw.Lat, 1e-12)
	assert.Greater(t, se.Lon, sw.Lon)
	assert.InDelta(t, sw.Lat, se.Lat, 1e-12)
	assert.Greater(t, ne.Lat, se.Lat)
	assert.InDelta(t, sw.Lon, nw.Lon, 1e-12)

	x, _ := ToPlanar(se.Lon, se.Lat)
	assert.InDelta(t, 2000, x, 1e-6)
}

func TestBuildGrid_Sorted(t *testing.T) {
	cells := map[string]Cell{}
	for _, c := range []Cell{{CX: 2, CY: 1}, {CX: -1, CY: 5}, {CX: 2, CY: -4}, {CX: 0, CY: 0}} {
		cells[c.Key()] = c
	}
	grid := BuildGrid(cells, 1000)
	require.Len(t, grid, 4)
	assert.Equal(t, int64(-1), grid[0].CX)
	assert.Equal(t, int64(0), grid[1].CX)
	assert.Equal(t, int64(2), grid[2].CX)
	assert.Equal(t, int64(-4), grid[2].CY)
	assert.Equal(t, int64(1), grid[3].CY)
	for _, g := range grid {
		assert.Len(t, g.Ring, 5)
	}
}

func TestPolygonFromRing_RoundTrip(t *testing.T) {
	ring := model.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}}
	assert.Equal(t, ring, RingFromPolygon(PolygonFromRing(ring)))
}

// ---------------------------------------------------------------------------
// Hull
// ---------------------------------------------------------------------------

func TestConvexHull_TooFewPoints(t *testing.T) {
	assert.Nil(t, ConvexHull(nil))
	assert.Nil(t, ConvexHull([]model.LonLat{{Lon: -50, Lat: -10}}))
	assert.Nil(t, ConvexHull([]model.LonLat{{Lon: -50, Lat: -10}, {Lon: -51, Lat: -11}}))
	// Three records but only two distinct positions.
	assert.Nil(t, ConvexHull([]model.LonLat{{Lon: -50, Lat: -10}, {Lon: -50, Lat: -10}, {Lon: -51, Lat: -11}}))
}

func TestConvexHull_Collinear(t *testing.T) {
	h := ConvexHull([]model.LonLat{{Lon: 0, Lat: 1}, {Lon: 1, Lat: 2}, {Lon: 2, Lat: 3}})
	assert.Nil(t, h)
}

func TestConvexHull_Triangle(t *testing.T) {
	h := ConvexHull([]model.LonLat{{Lon: -50, Lat: -10}, {Lon: -49, Lat: -10}, {Lon: -50, Lat: -9}})
	require.NotNil(t, h)

	expected := 6182.0
	assert.InDelta(t, expected, h.AreaKm2, expected*0.2)

	ring := RingFromPolygon(h.Polygon)
	assert.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestConvexHull_DropsInteriorPoints(t *testing.T) {
	pts := []model.LonLat{
		{Lon: -50, Lat: -10}, {Lon: -49, Lat: -10}, {Lon: -49, Lat: -9}, {Lon: -50, Lat: -9},
		{Lon: -49.5, Lat: -9.5},
	}
	h := ConvexHull(pts)
	require.NotNil(t, h)
	assert.Len(t, RingFromPolygon(h.Polygon), 5)
	assert.InDelta(t, 12364, h.AreaKm2, 12364*0.2)
}

func TestPlanarAreaKm2_Nil(t *testing.T) {
	assert.Zero(t, PlanarAreaKm2(nil))
}
