package ingest

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Mapping names the columns holding each occurrence field. ID and Label are
// optional.
type Mapping struct {
	LatColumn   string `json:"lat_column"`
	LonColumn   string `json:"lon_column"`
	IDColumn    string `json:"id_column,omitempty"`
	LabelColumn string `json:"label_column,omitempty"`
}

// Common header names, matched case-insensitively, in preference order.
var (
	latNames   = []string{"lat", "latitude", "decimallatitude", "y"}
	lonNames   = []string{"lon", "lng", "long", "longitude", "decimallongitude", "x"}
	idNames    = []string{"id", "occurrenceid", "catalognumber", "gbifid"}
	labelNames = []string{"label", "scientificname", "species", "locality", "name"}
)

// DetectMapping guesses a mapping from headers. Explicit fields in override
// win over detected ones.
func DetectMapping(headers []string, override Mapping) (Mapping, error) {
	m := Mapping{
		LatColumn:   pick(headers, override.LatColumn, latNames),
		LonColumn:   pick(headers, override.LonColumn, lonNames),
		IDColumn:    pick(headers, override.IDColumn, idNames),
		LabelColumn: pick(headers, override.LabelColumn, labelNames),
	}
	return m, m.Validate(headers)
}

// Validate checks that every mapped column exists in headers.
func (m Mapping) Validate(headers []string) error {
	if m.LatColumn == "" || m.LonColumn == "" {
		return eris.New("ingest: latitude and longitude columns are required")
	}
	for _, col := range []string{m.LatColumn, m.LonColumn, m.IDColumn, m.LabelColumn} {
		if col != "" && !slices.Contains(headers, col) {
			return eris.Errorf("ingest: column %q not found", col)
		}
	}
	return nil
}

func pick(headers []string, explicit string, candidates []string) string {
	if explicit != "" {
		return explicit
	}
	for _, c := range candidates {
		for _, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), c) {
				return h
			}
		}
	}
	return ""
}
