// Package model defines the occurrence, result, and assessment types shared
// by the extent engines, the store, and the compute transport.
package model

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// CalcStatus controls whether an occurrence takes part in EOO/AOO computation.
type CalcStatus string

const (
	CalcStatusEnabled  CalcStatus = "enabled"
	CalcStatusDisabled CalcStatus = "disabled"
)

// Valid reports whether s is a known status.
func (s CalcStatus) Valid() bool {
	return s == CalcStatusEnabled || s == CalcStatusDisabled
}

// Occurrence is a single georeferenced record of a taxon.
// Values are fully populated; use NormalizeOccurrence to build one from input.
type Occurrence struct {
	ID         string     `json:"id"`
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Label      string     `json:"label,omitempty"`
	Source     string     `json:"source,omitempty"`
	CalcStatus CalcStatus `json:"calc_status"`
}

// Enabled reports whether the occurrence is switched on for computation.
func (o Occurrence) Enabled() bool {
	return o.CalcStatus == CalcStatusEnabled
}

// Computable reports whether the occurrence is enabled and has valid coordinates.
func (o Occurrence) Computable() bool {
	return o.Enabled() && ValidateLatLon(o.Lat, o.Lon).OK
}

// OccurrenceInput is the loosely-typed form an occurrence arrives in from
// files, the store, or the wire. Missing fields are legal; NormalizeOccurrence
// fills them in.
type OccurrenceInput struct {
	ID         string   `json:"id,omitempty" yaml:"id,omitempty"`
	Lat        *float64 `json:"lat" yaml:"lat"`
	Lon        *float64 `json:"lon" yaml:"lon"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	Source     string   `json:"source,omitempty" yaml:"source,omitempty"`
	CalcStatus string   `json:"calc_status,omitempty" yaml:"calc_status,omitempty"`
}

// NormalizeOccurrence converts input into a fully-populated Occurrence.
// An empty id gets a generated UUID, labels and sources are trimmed, and a
// missing calc status defaults to enabled. Coordinates are not range-checked
// here: invalid points are kept and excluded later by Computable.
func NormalizeOccurrence(in OccurrenceInput) (Occurrence, error) {
	if in.Lat == nil || in.Lon == nil {
		return Occurrence{}, eris.New("model: occurrence missing lat/lon")
	}

	status := CalcStatus(strings.ToLower(strings.TrimSpace(in.CalcStatus)))
	if status == "" {
		status = CalcStatusEnabled
	}
	if !status.Valid() {
		return Occurrence{}, eris.Errorf("model: unknown calc status %q", in.CalcStatus)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.New().String()
	}

	return Occurrence{
		ID:         id,
		Lat:        *in.Lat,
		Lon:        *in.Lon,
		Label:      strings.TrimSpace(in.Label),
		Source:     strings.TrimSpace(in.Source),
		CalcStatus: status,
	}, nil
}

// NormalizeOccurrences normalizes a batch, failing on the first bad record.
func NormalizeOccurrences(in []OccurrenceInput) ([]Occurrence, error) {
	out := make([]Occurrence, 0, len(in))
	for i, raw := range in {
		occ, err := NormalizeOccurrence(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "model: occurrence %d", i)
		}
		out = append(out, occ)
	}
	return out, nil
}

// SelectComputable returns the occurrences that count toward EOO and AOO,
// preserving input order.
func SelectComputable(occurrences []Occurrence) []Occurrence {
	out := make([]Occurrence, 0, len(occurrences))
	for _, o := range occurrences {
		if o.Computable() {
			out = append(out, o)
		}
	}
	return out
}

// Representable reports whether the occurrence can cross a JSON boundary
// unchanged. JSON has no encoding for NaN or infinities.
func (o Occurrence) Representable() bool {
	return !math.IsNaN(o.Lat) && !math.IsInf(o.Lat, 0) &&
		!math.IsNaN(o.Lon) && !math.IsInf(o.Lon, 0)
}
