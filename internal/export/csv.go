package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/model"
)

// CSVHeader is the column layout of WriteOccurrencesCSV.
var CSVHeader = []string{"id", "label", "lat", "lon", "source"}

// WriteOccurrencesCSV writes the occurrences with valid coordinates as CSV.
// The output reads back through ingest with the default column mapping.
func WriteOccurrencesCSV(w io.Writer, occurrences []model.Occurrence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, o := range occurrences {
		if !model.ValidateLatLon(o.Lat, o.Lon).OK {
			continue
		}
		record := []string{
			o.ID,
			o.Label,
			strconv.FormatFloat(o.Lat, 'f', -1, 64),
			strconv.FormatFloat(o.Lon, 'f', -1, 64),
			o.Source,
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}
