package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/extent-cli/internal/fingerprint"
	"github.com/sells-group/extent-cli/internal/model"
)

// ReasonInvalidOccurrence marks a row whose coordinates were fine but which
// could not be normalized.
const ReasonInvalidOccurrence model.LatLonReason = "invalid-occurrence"

// Stats summarizes an import.
type Stats struct {
	Rows     int `json:"rows"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	ZeroZero int `json:"zero_zero"`
	Deduped  int `json:"deduped"`
	// ReassignedIDs counts rows whose id repeated an earlier row of the same
	// import and were given a fresh one.
	ReassignedIDs int `json:"reassigned_ids"`
}

// InvalidRow is a rejected row. Index is 1-based and excludes the header.
type InvalidRow struct {
	Index  int                `json:"index"`
	Reason model.LatLonReason `json:"reason"`
}

// Result is the outcome of an import.
type Result struct {
	Imported    []model.Occurrence `json:"imported"`
	Stats       Stats              `json:"stats"`
	InvalidRows []InvalidRow       `json:"invalid_rows"`
}

// ParseCoordinate parses a decimal coordinate, accepting ',' as the decimal
// separator and ignoring whitespace. Unparseable input yields NaN.
func ParseCoordinate(s string) float64 {
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// candidate is a parsed row before validation.
type candidate struct {
	id, label string
	lat, lon  float64
}

// ImportTable maps table rows to occurrences tagged with source. Rows with
// invalid coordinates are reported, not imported.
func ImportTable(t *Table, m Mapping, source string) (*Result, error) {
	if err := m.Validate(t.Headers); err != nil {
		return nil, err
	}
	cands := make([]candidate, len(t.Rows))
	for i := range t.Rows {
		rec := t.Record(i)
		cands[i] = candidate{
			lat: ParseCoordinate(rec[m.LatColumn]),
			lon: ParseCoordinate(rec[m.LonColumn]),
		}
		if m.IDColumn != "" {
			cands[i].id = rec[m.IDColumn]
		}
		if m.LabelColumn != "" {
			cands[i].label = rec[m.LabelColumn]
		}
	}
	return build(cands, source), nil
}

func build(cands []candidate, source string) *Result {
	res := &Result{
		Imported:    []model.Occurrence{},
		InvalidRows: []InvalidRow{},
		Stats:       Stats{Rows: len(cands)},
	}

	var valid []model.Occurrence
	for i, c := range cands {
		v := model.ValidateLatLon(c.lat, c.lon)
		if !v.OK {
			res.Stats.Invalid++
			if v.Reason == model.ReasonZeroZero {
				res.Stats.ZeroZero++
			}
			res.InvalidRows = append(res.InvalidRows, InvalidRow{Index: i + 1, Reason: v.Reason})
			continue
		}

		lat, lon := c.lat, c.lon
		o, err := model.NormalizeOccurrence(model.OccurrenceInput{
			ID: c.id, Lat: &lat, Lon: &lon, Label: c.label, Source: source,
		})
		if err != nil {
			res.Stats.Invalid++
			res.InvalidRows = append(res.InvalidRows, InvalidRow{Index: i + 1, Reason: ReasonInvalidOccurrence})
			continue
		}
		valid = append(valid, o)
	}

	kept, removed := Dedupe(valid)
	res.Stats.ReassignedIDs = ReassignDuplicateIDs(kept)
	res.Imported = append(res.Imported, kept...)
	res.Stats.Valid = len(kept)
	res.Stats.Deduped = removed
	return res
}

// ReassignDuplicateIDs gives every occurrence whose id already appeared
// earlier in the slice a new UUID, so distinct points sharing an id are all
// stored. It returns the number of ids replaced.
func ReassignDuplicateIDs(occurrences []model.Occurrence) int {
	seen := make(map[string]struct{}, len(occurrences))
	n := 0
	for i := range occurrences {
		if _, ok := seen[occurrences[i].ID]; ok {
			occurrences[i].ID = uuid.NewString()
			n++
		}
		seen[occurrences[i].ID] = struct{}{}
	}
	return n
}

// DedupeKey identifies duplicate records: coordinates rounded to six
// decimals plus the trimmed label.
func DedupeKey(o model.Occurrence) string {
	return fmt.Sprintf("%v|%v|%s",
		fingerprint.Round(o.Lat, fingerprint.Decimals),
		fingerprint.Round(o.Lon, fingerprint.Decimals),
		strings.TrimSpace(o.Label))
}

// Dedupe keeps the first occurrence of each DedupeKey.
func Dedupe(occurrences []model.Occurrence) (kept []model.Occurrence, removed int) {
	seen := make(map[string]struct{}, len(occurrences))
	kept = make([]model.Occurrence, 0, len(occurrences))
	for _, o := range occurrences {
		key := DedupeKey(o)
		if _, ok := seen[key]; ok {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, o)
	}
	return kept, removed
}

// RemoveInvalid drops occurrences with invalid coordinates.
func RemoveInvalid(occurrences []model.Occurrence) (kept []model.Occurrence, removed int) {
	kept = make([]model.Occurrence, 0, len(occurrences))
	for _, o := range occurrences {
		if model.ValidateLatLon(o.Lat, o.Lon).OK {
			kept = append(kept, o)
		} else {
			removed++
		}
	}
	return kept, removed
}
