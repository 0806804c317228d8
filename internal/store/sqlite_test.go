package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "extent.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func occ(id string, lat, lon float64) model.Occurrence {
	return model.Occurrence{ID: id, Lat: lat, Lon: lon, CalcStatus: model.CalcStatusEnabled, Source: "test"}
}

func square() []model.Occurrence {
	return []model.Occurrence{occ("a", -10, -50), occ("b", -10, -49), occ("c", -9, -49), occ("d", -9, -50)}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func TestSQLite_CreateAndGetProject(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "  Araucaria  ", model.Settings{})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Araucaria", p.Name)
	assert.InDelta(t, model.DefaultCellSizeMeters, p.Settings.AooCellSizeMeters, 0)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Araucaria", got.Name)
	assert.Empty(t, got.Occurrences)
	assert.Nil(t, got.Results.Eoo)
	assert.Nil(t, got.Results.Aoo)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLite_CreateProjectValidation(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.CreateProject(context.Background(), "ab", model.Settings{})
	assert.Error(t, err)

	_, err = s.CreateProject(context.Background(), "valid name", model.Settings{AooCellSizeMeters: -1})
	assert.ErrorIs(t, err, extent.ErrInvalidCellSize)
}

func TestSQLite_GetProjectNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRenameDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a, err := s.CreateProject(ctx, "first project", model.Settings{})
	require.NoError(t, err)
	b, err := s.CreateProject(ctx, "second project", model.Settings{})
	require.NoError(t, err)
	require.NoError(t, s.AddOccurrences(ctx, b.ID, square()))

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	counts := map[string]int{}
	for _, ps := range list {
		counts[ps.ID] = ps.OccurrenceCount
	}
	assert.Equal(t, 0, counts[a.ID])
	assert.Equal(t, 4, counts[b.ID])

	require.NoError(t, s.RenameProject(ctx, a.ID, "renamed project"))
	got, err := s.GetProject(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed project", got.Name)
	assert.ErrorIs(t, s.RenameProject(ctx, "missing", "whatever"), ErrNotFound)

	require.NoError(t, s.DeleteProject(ctx, b.ID))
	_, err = s.GetProject(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, b.ID), ErrNotFound)
}

func TestSQLite_UpdateSettings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "settings test", model.Settings{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateSettings(ctx, p.ID, model.Settings{AooCellSizeMeters: 4000}))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4000, got.CellSize(), 0)

	assert.ErrorIs(t, s.UpdateSettings(ctx, p.ID, model.Settings{}), extent.ErrInvalidCellSize)
}

// ---------------------------------------------------------------------------
// Occurrences
// ---------------------------------------------------------------------------

func TestSQLite_OccurrencesKeepOrderAndUpsert(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "occurrences", model.Settings{})
	require.NoError(t, err)

	require.NoError(t, s.AddOccurrences(ctx, p.ID, square()[:2]))
	require.NoError(t, s.AddOccurrences(ctx, p.ID, square()[2:]))

	moved := occ("a", -11, -51)
	moved.Label = "moved"
	require.NoError(t, s.AddOccurrences(ctx, p.ID, []model.Occurrence{moved}))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Occurrences, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got.Occurrences))
	assert.Equal(t, moved, got.Occurrences[0])

	require.NoError(t, s.ReplaceOccurrences(ctx, p.ID, []model.Occurrence{occ("z", 1, 1)}))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, ids(got.Occurrences))
}

func TestSQLite_AddOccurrencesRejectsBadInput(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "bad input", model.Settings{})
	require.NoError(t, err)

	assert.Error(t, s.AddOccurrences(ctx, p.ID, []model.Occurrence{{Lat: 1, Lon: 1, CalcStatus: model.CalcStatusEnabled}}))
	assert.Error(t, s.AddOccurrences(ctx, p.ID, []model.Occurrence{{ID: "x", Lat: 1, Lon: 1}}))
	assert.ErrorIs(t, s.AddOccurrences(ctx, "missing", square()), ErrNotFound)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Occurrences)
}

func TestSQLite_CalcStatusAndDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "calc status", model.Settings{})
	require.NoError(t, err)
	require.NoError(t, s.AddOccurrences(ctx, p.ID, square()))

	require.NoError(t, s.SetCalcStatus(ctx, p.ID, "b", model.CalcStatusDisabled))
	assert.ErrorIs(t, s.SetCalcStatus(ctx, p.ID, "nope", model.CalcStatusDisabled), ErrNotFound)
	assert.Error(t, s.SetCalcStatus(ctx, p.ID, "b", "maybe"))

	require.NoError(t, s.DeleteOccurrence(ctx, p.ID, "d"))
	assert.ErrorIs(t, s.DeleteOccurrence(ctx, p.ID, "d"), ErrNotFound)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got.Occurrences))
	assert.Equal(t, model.CalcStatusDisabled, got.Occurrences[1].CalcStatus)
}

// ---------------------------------------------------------------------------
// Results and assessment
// ---------------------------------------------------------------------------

func TestSQLite_ResultsRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "results", model.Settings{})
	require.NoError(t, err)
	require.NoError(t, s.AddOccurrences(ctx, p.ID, square()))

	eoo := extent.ComputeEOO(square())
	aoo, err := extent.ComputeAOO(square(), 2000)
	require.NoError(t, err)
	require.NoError(t, s.SaveEooResult(ctx, p.ID, eoo))
	require.NoError(t, s.SaveAooResult(ctx, p.ID, aoo))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Results.Eoo)
	require.NotNil(t, got.Results.Aoo)

	assert.Equal(t, eoo.Hull, got.Results.Eoo.Hull)
	assert.Equal(t, eoo.AreaKm2, got.Results.Eoo.AreaKm2)
	assert.Equal(t, eoo.InputHash, got.Results.Eoo.InputHash)
	assert.WithinDuration(t, eoo.ComputedAt, got.Results.Eoo.ComputedAt, time.Millisecond)
	assert.Equal(t, aoo.Grid, got.Results.Aoo.Grid)
	assert.Equal(t, aoo.CellCount, got.Results.Aoo.CellCount)

	st := extent.ProjectStaleness(got)
	assert.False(t, st.Eoo)
	assert.False(t, st.Aoo)

	// Overwrite with a hull-less result.
	small := extent.ComputeEOO(square()[:2])
	require.NoError(t, s.SaveEooResult(ctx, p.ID, small))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Results.Eoo.Hull)
	assert.Equal(t, 2, got.Results.Eoo.PointsUsed)

	assert.ErrorIs(t, s.SaveEooResult(ctx, "missing", eoo), ErrNotFound)
}

func TestSQLite_SaveAssessment(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "assessment", model.Settings{})
	require.NoError(t, err)

	locations := 3
	a := model.Assessment{
		SeverelyFragmented: true,
		NumberOfLocations:  &locations,
		ContinuingDecline:  model.ItemFlag{Enabled: true, Items: []model.SubcriterionItem{model.ItemIII}},
	}
	require.NoError(t, s.SaveAssessment(ctx, p.ID, a))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got.Assessment)
	assert.ErrorIs(t, s.SaveAssessment(ctx, "missing", a), ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func ids(occs []model.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.ID
	}
	return out
}
