package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/extent-cli/internal/model"
	"github.com/sells-group/extent-cli/internal/store"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Occurrences")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "occ.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseCoordinate(t *testing.T) {
	assert.InDelta(t, -10.5, ParseCoordinate(" -10,5 "), 0)
	assert.InDelta(t, 12.25, ParseCoordinate("12.25"), 0)
	assert.InDelta(t, -3.1, ParseCoordinate("- 3.1"), 0)
	assert.True(t, math.IsNaN(ParseCoordinate("")))
	assert.True(t, math.IsNaN(ParseCoordinate("north")))
}

func TestReadCSV(t *testing.T) {
	in := "lat,lon,name\n-10,-50,a\n\n-9,-49\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "lon", "name"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "", tbl.Record(1)["name"])
}

func TestReadCSV_Semicolon(t *testing.T) {
	in := "latitude;longitude\n\"-10,5\";\"-50,25\"\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(in), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	m, err := DetectMapping(tbl.Headers, Mapping{})
	require.NoError(t, err)

	res, err := ImportTable(tbl, m, FormatCSV)
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	assert.InDelta(t, -10.5, res.Imported[0].Lat, 0)
	assert.InDelta(t, -50.25, res.Imported[0].Lon, 0)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	assert.Error(t, err)
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("lat,lon\n1,1\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestDetectMapping(t *testing.T) {
	m, err := DetectMapping([]string{"gbifID", "scientificName", "decimalLatitude", "decimalLongitude"}, Mapping{})
	require.NoError(t, err)
	assert.Equal(t, Mapping{
		LatColumn:   "decimalLatitude",
		LonColumn:   "decimalLongitude",
		IDColumn:    "gbifID",
		LabelColumn: "scientificName",
	}, m)

	m, err = DetectMapping([]string{"Y", "X", "species", "site"}, Mapping{LabelColumn: "site"})
	require.NoError(t, err)
	assert.Equal(t, "Y", m.LatColumn)
	assert.Equal(t, "site", m.LabelColumn)
	assert.Empty(t, m.IDColumn)
}

func TestDetectMapping_Missing(t *testing.T) {
	_, err := DetectMapping([]string{"a", "b"}, Mapping{})
	assert.Error(t, err)

	_, err = DetectMapping([]string{"lat", "lon"}, Mapping{IDColumn: "nope"})
	assert.Error(t, err)
}

func TestImportTable_StatsAndReasons(t *testing.T) {
	tbl := &Table{
		Headers: []string{"id", "lat", "lon", "label"},
		Rows: [][]string{
			{"a", "-10", "-50", "x"},
			{"b", "0", "0", "x"},
			{"c", "95", "10", "x"},
			{"d", "10", "190", "x"},
			{"e", "", "10", "x"},
			{"f", "-10.0000001", "-50", " x "},
			{"", "-11", "-51", ""},
		},
	}
	m, err := DetectMapping(tbl.Headers, Mapping{})
	require.NoError(t, err)

	res, err := ImportTable(tbl, m, FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 7, Valid: 2, Invalid: 4, ZeroZero: 1, Deduped: 1}, res.Stats)
	assert.Equal(t, []InvalidRow{
		{Index: 2, Reason: model.ReasonZeroZero},
		{Index: 3, Reason: model.ReasonLatOutOfRange},
		{Index: 4, Reason: model.ReasonLonOutOfRange},
		{Index: 5, Reason: model.ReasonNotFinite},
	}, res.InvalidRows)

	require.Len(t, res.Imported, 2)
	assert.Equal(t, "a", res.Imported[0].ID)
	assert.Equal(t, FormatCSV, res.Imported[0].Source)
	assert.Equal(t, model.CalcStatusEnabled, res.Imported[0].CalcStatus)
	assert.NotEmpty(t, res.Imported[1].ID)
}

func TestDedupe_KeepsFirst(t *testing.T) {
	occs := []model.Occurrence{
		{ID: "1", Lat: 1, Lon: 1, Label: "a"},
		{ID: "2", Lat: 1, Lon: 1, Label: "b"},
		{ID: "3", Lat: 1.0000001, Lon: 1, Label: "a"},
	}
	kept, removed := Dedupe(occs)
	assert.Equal(t, 1, removed)
	require.Len(t, kept, 2)
	assert.Equal(t, "1", kept[0].ID)
	assert.Equal(t, "2", kept[1].ID)
}

func TestImportTable_RepeatedIDKeepsBothPoints(t *testing.T) {
	tbl := &Table{
		Headers: []string{"id", "lat", "lon"},
		Rows: [][]string{
			{"1", "-10", "-50"},
			{"1", "-11", "-51"},
			{"2", "-12", "-52"},
		},
	}
	m, err := DetectMapping(tbl.Headers, Mapping{})
	require.NoError(t, err)

	res, err := ImportTable(tbl, m, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Valid)
	assert.Equal(t, 1, res.Stats.ReassignedIDs)
	require.Len(t, res.Imported, 3)
	assert.Equal(t, "1", res.Imported[0].ID)
	assert.NotEqual(t, "1", res.Imported[1].ID)
	assert.NotEmpty(t, res.Imported[1].ID)
	assert.InDelta(t, -11, res.Imported[1].Lat, 0)
	assert.Equal(t, "2", res.Imported[2].ID)

	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "extent.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	p, err := st.CreateProject(ctx, "Repeated ids", model.Settings{})
	require.NoError(t, err)
	require.NoError(t, st.AddOccurrences(ctx, p.ID, res.Imported))

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Occurrences, 3)
}

func TestReassignDuplicateIDs(t *testing.T) {
	occs := []model.Occurrence{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "a"}}
	assert.Equal(t, 2, ReassignDuplicateIDs(occs))
	ids := map[string]bool{}
	for _, o := range occs {
		ids[o.ID] = true
	}
	assert.Len(t, ids, 4)
	assert.Equal(t, "a", occs[0].ID)
}

func TestRemoveInvalid(t *testing.T) {
	kept, removed := RemoveInvalid([]model.Occurrence{
		{ID: "1", Lat: 1, Lon: 1},
		{ID: "2", Lat: 0, Lon: 0},
		{ID: "3", Lat: math.NaN(), Lon: 1},
	})
	assert.Equal(t, 2, removed)
	require.Len(t, kept, 1)
	assert.Equal(t, "1", kept[0].ID)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Latitude", "Longitude", "Species"},
		{"-10.5", "-50.25", "Araucaria"},
		{"", "", ""},
		{"-9", "-49", "Araucaria"},
	})

	res, err := ImportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Rows)
	require.Len(t, res.Imported, 2)
	assert.Equal(t, "Araucaria", res.Imported[0].Label)
	assert.Equal(t, FormatXLSX, res.Imported[0].Source)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"lat", "lon"}, {"1", "1"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)

	tbl, err := ReadXLSX(path, XLSXOptions{SheetName: "Occurrences"})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}

func TestImportJSON_Array(t *testing.T) {
	in := `[
		{"id": "a", "label": "x", "lat": -10, "lon": -50},
		{"id": 7, "lat": "-9,5", "lon": "-49"},
		{"lat": 0, "lon": 0},
		"garbage"
	]`
	res, err := ImportJSON(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 4, Valid: 2, Invalid: 2, ZeroZero: 1}, res.Stats)
	require.Len(t, res.Imported, 2)
	assert.Equal(t, "a", res.Imported[0].ID)
	assert.NotEqual(t, "7", res.Imported[1].ID)
	assert.InDelta(t, -9.5, res.Imported[1].Lat, 0)
	assert.Equal(t, SourceJSON, res.Imported[1].Source)
	assert.Equal(t, []InvalidRow{
		{Index: 3, Reason: model.ReasonZeroZero},
		{Index: 4, Reason: model.ReasonNotFinite},
	}, res.InvalidRows)
}

func TestImportJSON_FeatureCollection(t *testing.T) {
	in := `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-50, -10]}, "properties": {"id": "p1", "label": "x"}},
		{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 1], [1, 2]]}, "properties": {}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [200, 10]}, "properties": {}}
	]}`
	res, err := ImportJSON(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Rows)
	assert.Equal(t, 1, res.Stats.Valid)
	require.Len(t, res.Imported, 1)
	assert.Equal(t, "p1", res.Imported[0].ID)
	assert.InDelta(t, -10, res.Imported[0].Lat, 0)
	assert.InDelta(t, -50, res.Imported[0].Lon, 0)
	assert.Equal(t, model.ReasonLonOutOfRange, res.InvalidRows[0].Reason)
}

func TestImportJSON_Unsupported(t *testing.T) {
	for _, in := range []string{"", `{"type": "Feature"}`, `42`, `{`} {
		_, err := ImportJSON(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestImportFile_DetectsFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "occ.tsv")
	require.NoError(t, os.WriteFile(path, []byte("lat\tlon\n-10\t-50\n"), 0o600))

	res, err := ImportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)

	_, err = ImportFile(context.Background(), filepath.Join(dir, "occ.kml"), FileOptions{})
	assert.Error(t, err)
}

func TestReadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occ.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	w.SetFields([]shp.Field{shp.StringField("ID", 20), shp.StringField("SPECIES", 40)})
	for i, p := range []struct {
		id, label string
		lon, lat  float64
	}{
		{"s1", "Araucaria", -50, -10},
		{"s2", "Araucaria", -49.5, -9.25},
		{"s3", "Araucaria", 0, 0},
	} {
		w.Write(&shp.Point{X: p.lon, Y: p.lat})
		require.NoError(t, w.WriteAttribute(i, 0, p.id))
		require.NoError(t, w.WriteAttribute(i, 1, p.label))
	}
	w.Close()

	res, err := ImportFile(context.Background(), path, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Rows)
	assert.Equal(t, 1, res.Stats.ZeroZero)
	require.Len(t, res.Imported, 2)
	assert.Equal(t, "s2", res.Imported[1].ID)
	assert.Equal(t, "Araucaria", res.Imported[1].Label)
	assert.InDelta(t, -9.25, res.Imported[1].Lat, 0)
	assert.Equal(t, FormatSHP, res.Imported[1].Source)
}
