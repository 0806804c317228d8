// Package report builds the audit report of a project: what was computed,
// from which inputs, and whether it still holds.
package report

import (
	"time"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/iucn"
	"github.com/sells-group/extent-cli/internal/model"
)

// App identifies the producer of a report.
type App struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ProjectInfo is the project header of a report.
type ProjectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OccurrenceStats counts occurrences by coordinate validity and status.
// ZeroZero rows are not counted as Invalid.
type OccurrenceStats struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	ZeroZero   int `json:"zero_zero"`
	Disabled   int `json:"disabled"`
	Computable int `json:"computable"`
}

// EooSection is the last EOO result with its staleness.
type EooSection struct {
	AreaKm2    float64   `json:"area_km2"`
	PointsUsed int       `json:"points_used"`
	HasHull    bool      `json:"has_hull"`
	ComputedAt time.Time `json:"computed_at"`
	InputHash  string    `json:"input_hash"`
	Stale      bool      `json:"stale"`
}

// AooSection is the last AOO result with its staleness.
type AooSection struct {
	AreaKm2        float64   `json:"area_km2"`
	CellCount      int       `json:"cell_count"`
	CellSizeMeters float64   `json:"cell_size_meters"`
	PointsUsed     int       `json:"points_used"`
	ComputedAt     time.Time `json:"computed_at"`
	InputHash      string    `json:"input_hash"`
	Stale          bool      `json:"stale"`
}

// Report is the audit report of one project.
type Report struct {
	Project     ProjectInfo      `json:"project"`
	Settings    model.Settings   `json:"settings"`
	Occurrences OccurrenceStats  `json:"occurrences_stats"`
	Eoo         *EooSection      `json:"eoo,omitempty"`
	Aoo         *AooSection      `json:"aoo,omitempty"`
	Assessment  model.Assessment `json:"assessment"`
	CriterionB  iucn.Inference   `json:"criterion_b"`
	App         App              `json:"app"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// CountOccurrences classifies occurrences by coordinate validity.
func CountOccurrences(occurrences []model.Occurrence) OccurrenceStats {
	s := OccurrenceStats{Total: len(occurrences)}
	for _, o := range occurrences {
		v := model.ValidateLatLon(o.Lat, o.Lon)
		switch {
		case v.OK:
			s.Valid++
		case v.Reason == model.ReasonZeroZero:
			s.ZeroZero++
		default:
			s.Invalid++
		}
		if !o.Enabled() {
			s.Disabled++
		}
		if o.Computable() {
			s.Computable++
		}
	}
	return s
}

// Build assembles the report of p. Staleness is recomputed from the current
// occurrences and settings, never read from storage.
func Build(p *model.Project, app App, now time.Time) *Report {
	stale := extent.ProjectStaleness(p)

	r := &Report{
		Project: ProjectInfo{
			ID:        p.ID,
			Name:      p.Name,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
		Settings:    model.Settings{AooCellSizeMeters: p.CellSize()},
		Occurrences: CountOccurrences(p.Occurrences),
		Assessment:  p.Assessment,
		CriterionB:  iucn.InferForProject(p, stale.Eoo, stale.Aoo),
		App:         app,
		GeneratedAt: now.UTC(),
	}

	if eoo := p.Results.Eoo; eoo != nil {
		r.Eoo = &EooSection{
			AreaKm2:    eoo.AreaKm2,
			PointsUsed: eoo.PointsUsed,
			HasHull:    eoo.HasHull(),
			ComputedAt: eoo.ComputedAt,
			InputHash:  eoo.InputHash,
			Stale:      stale.Eoo,
		}
	}
	if aoo := p.Results.Aoo; aoo != nil {
		r.Aoo = &AooSection{
			AreaKm2:        aoo.AreaKm2,
			CellCount:      aoo.CellCount,
			CellSizeMeters: aoo.CellSizeMeters,
			PointsUsed:     aoo.PointsUsed,
			ComputedAt:     aoo.ComputedAt,
			InputHash:      aoo.InputHash,
			Stale:          stale.Aoo,
		}
	}

	return r
}
