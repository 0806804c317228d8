package extent

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewEngine().WithClock(func() time.Time { return fixedNow })
}

func occ(id string, lat, lon float64) model.Occurrence {
	return model.Occurrence{ID: id, Lat: lat, Lon: lon, CalcStatus: model.CalcStatusEnabled}
}

func triangle() []model.Occurrence {
	return []model.Occurrence{occ("a", -10, -50), occ("b", -10, -49), occ("c", -9, -50)}
}

// ---------------------------------------------------------------------------
// EOO
// ---------------------------------------------------------------------------

func TestComputeEOO_FewerThanThreePoints(t *testing.T) {
	e := testEngine()

	for n, occs := range [][]model.Occurrence{
		nil,
		{occ("a", -10, -50)},
		{occ("a", -10, -50), occ("b", -11, -51)},
	} {
		r := e.ComputeEOO(occs)
		assert.Nil(t, r.Hull, "n=%d", n)
		assert.False(t, r.HasHull())
		assert.Zero(t, r.AreaKm2)
		assert.Equal(t, n, r.PointsUsed)
		assert.NotEmpty(t, r.InputHash)
	}
}

func TestComputeEOO_Triangle(t *testing.T) {
	occs := append([]model.Occurrence{occ("zero", 0, 0)}, triangle()...)

	r := testEngine().ComputeEOO(occs)
	require.True(t, r.HasHull())
	assert.Equal(t, 3, r.PointsUsed)
	assert.Len(t, r.Hull, 4)
	assert.InDelta(t, 6182, r.AreaKm2, 6182*0.2)
	assert.Equal(t, fixedNow, r.ComputedAt)
	assert.Len(t, r.InputHash, 8)
}

func TestComputeEOO_SquareIgnoresInvalidAndDisabled(t *testing.T) {
	occs := []model.Occurrence{
		occ("a", -10, -50), occ("b", -10, -49), occ("c", -9, -49), occ("d", -9, -50),
		occ("inv", 1000, 0),
		{ID: "off", Lat: -30, Lon: -30, CalcStatus: model.CalcStatusDisabled},
	}
	r := testEngine().ComputeEOO(occs)
	require.True(t, r.HasHull())
	assert.Equal(t, 4, r.PointsUsed)
	assert.InDelta(t, 12364, r.AreaKm2, 12364*0.2)
}

func TestComputeEOO_CollinearIsZero(t *testing.T) {
	r := testEngine().ComputeEOO([]model.Occurrence{occ("a", 1, 1), occ("b", 2, 2), occ("c", 3, 3)})
	assert.Nil(t, r.Hull)
	assert.Zero(t, r.AreaKm2)
	assert.False(t, math.IsNaN(r.AreaKm2))
	assert.Equal(t, 3, r.PointsUsed)
}

func TestComputeEOO_HashPermutationInvariant(t *testing.T) {
	occs := triangle()
	reversed := []model.Occurrence{occs[2], occs[1], occs[0]}
	assert.Equal(t, ComputeEOO(occs).InputHash, ComputeEOO(reversed).InputHash)
}

func TestComputeEOO_DisablingChangesHashAndPoints(t *testing.T) {
	occs := append(triangle(), occ("d", -8, -48))
	before := ComputeEOO(occs)

	occs[3].CalcStatus = model.CalcStatusDisabled
	after := ComputeEOO(occs)

	assert.NotEqual(t, before.InputHash, after.InputHash)
	assert.Equal(t, 4, before.PointsUsed)
	assert.Equal(t, 3, after.PointsUsed)
}

// ---------------------------------------------------------------------------
// AOO
// ---------------------------------------------------------------------------

func TestComputeAOO_InvalidCellSize(t *testing.T) {
	for _, size := range []float64{0, -2000, math.NaN(), math.Inf(1)} {
		_, err := testEngine().ComputeAOO(triangle(), size)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCellSize)
	}
}

func TestComputeAOO_NoPoints(t *testing.T) {
	r, err := testEngine().ComputeAOO([]model.Occurrence{occ("z", 0, 0)}, 2000)
	require.NoError(t, err)
	assert.Zero(t, r.CellCount)
	assert.Zero(t, r.AreaKm2)
	assert.Zero(t, r.PointsUsed)
	assert.NotNil(t, r.Grid)
	assert.Empty(t, r.Grid)
	assert.InDelta(t, 2000, r.CellSizeMeters, 0)
}

func TestComputeAOO_TwoPointsSameCell(t *testing.T) {
	lonA, latA := geo.ToGeographic(-5_000_000+0.25, -1_000_000+500)
	lonB, latB := geo.ToGeographic(-5_000_000+1999.25, -1_000_000+500)

	r, err := testEngine().ComputeAOO([]model.Occurrence{occ("a", latA, lonA), occ("b", latB, lonB)}, 2000)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CellCount)
	assert.InDelta(t, 4, r.AreaKm2, 1e-12)
	assert.Equal(t, 2, r.PointsUsed)
	require.Len(t, r.Grid, 1)
	assert.Equal(t, int64(-2500), r.Grid[0].CX)
	assert.Equal(t, int64(-500), r.Grid[0].CY)
	assert.Equal(t, fixedNow, r.ComputedAt)
}

func TestComputeAOO_DistinctCells(t *testing.T) {
	r, err := testEngine().ComputeAOO(triangle(), 2000)
	require.NoError(t, err)
	assert.Equal(t, 3, r.CellCount)
	assert.InDelta(t, 12, r.AreaKm2, 1e-9)
	assert.Len(t, r.Grid, 3)
}

func TestComputeAOO_DuplicatePointDoesNotChangeCount(t *testing.T) {
	base, err := ComputeAOO(triangle(), 2000)
	require.NoError(t, err)

	withDup, err := ComputeAOO(append(triangle(), occ("dup", -10.000001, -50.000001)), 2000)
	require.NoError(t, err)

	assert.Equal(t, base.CellCount, withDup.CellCount)
	assert.Equal(t, 4, withDup.PointsUsed)
	assert.NotEqual(t, base.InputHash, withDup.InputHash)
}

func TestComputeAOO_HashDependsOnCellSize(t *testing.T) {
	a, err := ComputeAOO(triangle(), 2000)
	require.NoError(t, err)
	b, err := ComputeAOO(triangle(), 4000)
	require.NoError(t, err)
	assert.NotEqual(t, a.InputHash, b.InputHash)
}

// ---------------------------------------------------------------------------
// Staleness
// ---------------------------------------------------------------------------

func TestIsEooStale(t *testing.T) {
	occs := triangle()
	assert.True(t, IsEooStale(nil, occs))

	last := ComputeEOO(occs)
	assert.False(t, IsEooStale(last, occs))
	assert.False(t, IsEooStale(last, []model.Occurrence{occs[1], occs[2], occs[0]}))

	occs[0].Lat = -10.5
	assert.True(t, IsEooStale(last, occs))
}

func TestIsAooStale(t *testing.T) {
	occs := triangle()
	assert.True(t, IsAooStale(nil, occs, 2000))

	last, err := ComputeAOO(occs, 2000)
	require.NoError(t, err)
	assert.False(t, IsAooStale(last, occs, 2000))
	assert.True(t, IsAooStale(last, occs, 1000))

	occs[1].Label = "renamed"
	assert.True(t, IsAooStale(last, occs, 2000))
}

func TestProjectStaleness(t *testing.T) {
	p := &model.Project{Occurrences: triangle()}
	s := ProjectStaleness(p)
	assert.True(t, s.Eoo)
	assert.True(t, s.Aoo)

	p.Results.Eoo = ComputeEOO(p.Occurrences)
	aoo, err := ComputeAOO(p.Occurrences, p.CellSize())
	require.NoError(t, err)
	p.Results.Aoo = aoo

	s = ProjectStaleness(p)
	assert.False(t, s.Eoo)
	assert.False(t, s.Aoo)
}
