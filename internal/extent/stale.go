package extent

import (
	"github.com/sells-group/extent-cli/internal/fingerprint"
	"github.com/sells-group/extent-cli/internal/model"
)

// IsEooStale reports whether last no longer reflects occurrences. A missing
// result is always stale.
func IsEooStale(last *model.EooResult, occurrences []model.Occurrence) bool {
	if last == nil {
		return true
	}
	return fingerprint.EOO(occurrences) != last.InputHash
}

// IsAooStale reports whether last no longer reflects occurrences at
// cellSizeMeters. A missing result is always stale.
func IsAooStale(last *model.AooResult, occurrences []model.Occurrence, cellSizeMeters float64) bool {
	if last == nil {
		return true
	}
	return fingerprint.AOO(occurrences, cellSizeMeters) != last.InputHash
}

// Staleness summarizes both metrics of a project.
type Staleness struct {
	Eoo bool `json:"eoo"`
	Aoo bool `json:"aoo"`
}

// ProjectStaleness checks the stored results of p against its occurrences and
// settings.
func ProjectStaleness(p *model.Project) Staleness {
	return Staleness{
		Eoo: IsEooStale(p.Results.Eoo, p.Occurrences),
		Aoo: IsAooStale(p.Results.Aoo, p.Occurrences, p.CellSize()),
	}
}
