package report

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/iucn"
	"github.com/sells-group/extent-cli/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testApp = App{Name: "extent-cli", Version: "test"}

func occ(id string, lat, lon float64) model.Occurrence {
	return model.Occurrence{ID: id, Lat: lat, Lon: lon, CalcStatus: model.CalcStatusEnabled}
}

func testProject(t *testing.T) *model.Project {
	t.Helper()
	p := &model.Project{
		ID:       "p1",
		Name:     "Araucaria",
		Settings: model.Settings{AooCellSizeMeters: 2000},
		Occurrences: []model.Occurrence{
			occ("a", -10, -50), occ("b", -10, -49.9), occ("c", -9.9, -50),
			occ("zero", 0, 0),
			occ("far", 95, 0),
			{ID: "off", Lat: -9, Lon: -49, CalcStatus: model.CalcStatusDisabled},
		},
		Assessment: model.Assessment{
			SeverelyFragmented: true,
			ContinuingDecline:  model.ItemFlag{Enabled: true, Items: []model.SubcriterionItem{model.ItemIII}},
		},
	}
	p.Results.Eoo = extent.ComputeEOO(p.Occurrences)
	aoo, err := extent.ComputeAOO(p.Occurrences, p.CellSize())
	require.NoError(t, err)
	p.Results.Aoo = aoo
	return p
}

func TestCountOccurrences(t *testing.T) {
	s := CountOccurrences(testProject(t).Occurrences)
	assert.Equal(t, OccurrenceStats{Total: 6, Valid: 4, Invalid: 1, ZeroZero: 1, Disabled: 1, Computable: 3}, s)

	s = CountOccurrences([]model.Occurrence{{ID: "nan", Lat: math.NaN(), Lon: 0, CalcStatus: model.CalcStatusEnabled}})
	assert.Equal(t, 1, s.Invalid)
	assert.Zero(t, s.Computable)
}

func TestBuild_Fresh(t *testing.T) {
	p := testProject(t)
	r := Build(p, testApp, fixedNow)

	assert.Equal(t, "p1", r.Project.ID)
	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Equal(t, testApp, r.App)
	require.NotNil(t, r.Eoo)
	require.NotNil(t, r.Aoo)
	assert.False(t, r.Eoo.Stale)
	assert.False(t, r.Aoo.Stale)
	assert.True(t, r.Eoo.HasHull)
	assert.Equal(t, p.Results.Eoo.InputHash, r.Eoo.InputHash)
	assert.Equal(t, 3, r.Aoo.PointsUsed)

	assert.Equal(t, iucn.CategoryCR, r.CriterionB.SpatialCategory)
	assert.True(t, r.CriterionB.CriterionBMet)
	assert.False(t, r.CriterionB.NeedsRecalc)
}

func TestBuild_StaleAfterEdit(t *testing.T) {
	p := testProject(t)
	p.Occurrences[0].Lat = -10.5

	r := Build(p, testApp, fixedNow)
	assert.True(t, r.Eoo.Stale)
	assert.True(t, r.Aoo.Stale)
	assert.True(t, r.CriterionB.NeedsRecalc)
}

func TestBuild_StaleAfterCellSizeChange(t *testing.T) {
	p := testProject(t)
	p.Settings.AooCellSizeMeters = 4000

	r := Build(p, testApp, fixedNow)
	assert.False(t, r.Eoo.Stale)
	assert.True(t, r.Aoo.Stale)
	assert.InDelta(t, 4000, r.Settings.AooCellSizeMeters, 0)
}

func TestBuild_NoResults(t *testing.T) {
	p := &model.Project{ID: "p2", Name: "Empty"}
	r := Build(p, testApp, fixedNow)
	assert.Nil(t, r.Eoo)
	assert.Nil(t, r.Aoo)
	assert.Equal(t, iucn.CategoryDD, r.CriterionB.SpatialCategory)
	assert.InDelta(t, model.DefaultCellSizeMeters, r.Settings.AooCellSizeMeters, 0)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"eoo"`)
	assert.Contains(t, string(b), `"criterion_b"`)
}

func TestWriteText(t *testing.T) {
	p := testProject(t)
	p.Occurrences[0].Lat = -10.5

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Build(p, testApp, fixedNow)))
	out := buf.String()

	assert.Contains(t, out, "Project: Araucaria (p1)")
	assert.Contains(t, out, "6 total, 4 valid, 1 invalid, 1 at (0,0), 1 disabled, 3 used")
	assert.Contains(t, out, "STALE")
	assert.Contains(t, out, "Criterion B: CR")
}

func TestWriteText_NotComputed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Build(&model.Project{ID: "x", Name: "Empty"}, testApp, fixedNow)))
	assert.Contains(t, buf.String(), "EOO: not computed")
	assert.Contains(t, buf.String(), "AOO: not computed")
	assert.Contains(t, buf.String(), "Criterion B: DD")
}
