// Package iucn infers a preliminary IUCN Red List category under Criterion B
// from EOO/AOO values and qualitative assessment flags.
package iucn

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/extent-cli/internal/model"
)

// Category is an IUCN Red List category.
type Category string

const (
	CategoryCR Category = "CR"
	CategoryEN Category = "EN"
	CategoryVU Category = "VU"
	CategoryNT Category = "NT"
	CategoryLC Category = "LC"
	CategoryDD Category = "DD"
)

// priority ranks categories by risk; higher is more threatened.
var priority = map[Category]int{
	CategoryCR: 5,
	CategoryEN: 4,
	CategoryVU: 3,
	CategoryNT: 2,
	CategoryLC: 1,
	CategoryDD: 0,
}

// Threatened reports whether c is CR, EN, or VU.
func (c Category) Threatened() bool {
	return c == CategoryCR || c == CategoryEN || c == CategoryVU
}

// Threshold holds the Criterion B limits of one threatened category.
// EOO and AOO bounds are exclusive; the location bound is inclusive.
type Threshold struct {
	EooMaxKm2    float64
	AooMaxKm2    float64
	MaxLocations int
}

// Thresholds are the Criterion B limits per threatened category.
var Thresholds = map[Category]Threshold{
	CategoryCR: {EooMaxKm2: 100, AooMaxKm2: 10, MaxLocations: 1},
	CategoryEN: {EooMaxKm2: 5000, AooMaxKm2: 500, MaxLocations: 5},
	CategoryVU: {EooMaxKm2: 20000, AooMaxKm2: 2000, MaxLocations: 10},
}

var descending = []Category{CategoryCR, CategoryEN, CategoryVU}

// Subcriterion is one of the Criterion B conditions a, b, c.
type Subcriterion string

const (
	SubcriterionA Subcriterion = "a"
	SubcriterionB Subcriterion = "b"
	SubcriterionC Subcriterion = "c"
)

// Input is everything the rules engine looks at. Nil areas mean the metric
// has not been computed.
type Input struct {
	EooKm2     *float64
	AooKm2     *float64
	EooStale   bool
	AooStale   bool
	Assessment model.Assessment
}

// Inference is the derived Criterion B outcome. It is recomputed on demand
// and never stored on its own.
type Inference struct {
	SpatialCategory      Category       `json:"spatial_category"`
	B1Triggered          bool           `json:"b1_triggered"`
	B2Triggered          bool           `json:"b2_triggered"`
	SubcriteriaSatisfied []Subcriterion `json:"subcriteria_satisfied"`
	CriterionBMet        bool           `json:"criterion_b_met"`
	SuggestedCategory    Category       `json:"suggested_category"`
	SuggestedCode        string         `json:"suggested_code,omitempty"`
	Notes                []string       `json:"notes"`
	NeedsRecalc          bool           `json:"needs_recalc"`
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func categoryBy(v *float64, limit func(Threshold) float64) (Category, bool) {
	if !finite(v) {
		return "", false
	}
	for _, c := range descending {
		if *v < limit(Thresholds[c]) {
			return c, true
		}
	}
	return "", false
}

func higherRisk(a Category, aok bool, b Category, bok bool) (Category, bool) {
	switch {
	case !aok:
		return b, bok
	case !bok:
		return a, aok
	case priority[a] >= priority[b]:
		return a, true
	default:
		return b, true
	}
}

// NormalizeItems drops unknown items, dedupes, and orders them i..v.
func NormalizeItems(items []model.SubcriterionItem) []model.SubcriterionItem {
	present := make(map[model.SubcriterionItem]bool, len(items))
	for _, it := range items {
		present[it] = true
	}
	out := make([]model.SubcriterionItem, 0, len(present))
	for _, it := range model.ItemOrder {
		if present[it] {
			out = append(out, it)
		}
	}
	return out
}

func joinItems(items []model.SubcriterionItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ",")
}

func subcriteriaCode(satisfied []Subcriterion, bItems, cItems []model.SubcriterionItem) string {
	var sb strings.Builder
	for _, s := range satisfied {
		sb.WriteString(string(s))
		switch {
		case s == SubcriterionB && len(bItems) > 0:
			sb.WriteString("(" + joinItems(bItems) + ")")
		case s == SubcriterionC && len(cItems) > 0:
			sb.WriteString("(" + joinItems(cItems) + ")")
		}
	}
	return sb.String()
}

// InferCriterionB applies the Criterion B rules. Stale inputs still produce a
// suggestion; NeedsRecalc and a note flag them.
func InferCriterionB(in Input) Inference {
	eooCat, eooOK := categoryBy(in.EooKm2, func(t Threshold) float64 { return t.EooMaxKm2 })
	aooCat, aooOK := categoryBy(in.AooKm2, func(t Threshold) float64 { return t.AooMaxKm2 })
	best, ok := higherRisk(eooCat, eooOK, aooCat, aooOK)

	spatial := best
	if !ok {
		if finite(in.EooKm2) || finite(in.AooKm2) {
			spatial = CategoryLC
		} else {
			spatial = CategoryDD
		}
	}

	inf := Inference{
		SpatialCategory:      spatial,
		SuggestedCategory:    spatial,
		SubcriteriaSatisfied: []Subcriterion{},
		Notes:                []string{},
		NeedsRecalc:          in.EooStale || in.AooStale,
	}

	a := in.Assessment
	threshold, threatened := Thresholds[spatial]
	if threatened {
		inf.B1Triggered = finite(in.EooKm2) && *in.EooKm2 < threshold.EooMaxKm2
		inf.B2Triggered = finite(in.AooKm2) && *in.AooKm2 < threshold.AooMaxKm2

		locationsOK := a.NumberOfLocations != nil && *a.NumberOfLocations >= 0 &&
			*a.NumberOfLocations <= threshold.MaxLocations
		if a.SeverelyFragmented || locationsOK {
			inf.SubcriteriaSatisfied = append(inf.SubcriteriaSatisfied, SubcriterionA)
		}
	}
	if a.ContinuingDecline.Enabled {
		inf.SubcriteriaSatisfied = append(inf.SubcriteriaSatisfied, SubcriterionB)
	}
	if a.ExtremeFluctuations.Enabled {
		inf.SubcriteriaSatisfied = append(inf.SubcriteriaSatisfied, SubcriterionC)
	}

	inf.CriterionBMet = threatened && len(inf.SubcriteriaSatisfied) >= 2

	switch {
	case inf.CriterionBMet:
		code := subcriteriaCode(inf.SubcriteriaSatisfied,
			NormalizeItems(a.ContinuingDecline.Items),
			NormalizeItems(a.ExtremeFluctuations.Items))

		var parts []string
		if inf.B1Triggered {
			parts = append(parts, "B1"+code)
		}
		if inf.B2Triggered {
			prefix := "B2"
			if inf.B1Triggered {
				prefix = "2"
			}
			parts = append(parts, prefix+code)
		}
		if len(parts) > 0 {
			inf.SuggestedCode = string(spatial) + " " + strings.Join(parts, "+")
			inf.Notes = append(inf.Notes, fmt.Sprintf("Criterion B suggestion: %s (%s).", spatial, inf.SuggestedCode))
		} else {
			inf.Notes = append(inf.Notes, fmt.Sprintf("Criterion B suggestion: %s.", spatial))
		}
	case threatened:
		var via []string
		if inf.B1Triggered {
			via = append(via, "B1")
		}
		if inf.B2Triggered {
			via = append(via, "B2")
		}
		inf.Notes = append(inf.Notes, fmt.Sprintf(
			"Meets the spatial threshold for %s via %s, but fewer than two of subcriteria a/b/c are satisfied.",
			spatial, strings.Join(via, "/")))
	case spatial == CategoryDD:
		inf.Notes = append(inf.Notes, "Insufficient data to apply Criterion B (EOO and AOO missing).")
	default:
		inf.Notes = append(inf.Notes, "EOO/AOO are above the VU thresholds of Criterion B.")
	}

	if finite(in.EooKm2) {
		inf.Notes = append(inf.Notes, "EOO: "+FormatKm2(*in.EooKm2)+" km².")
	}
	if finite(in.AooKm2) {
		inf.Notes = append(inf.Notes, "AOO: "+FormatKm2(*in.AooKm2)+" km².")
	}
	if inf.NeedsRecalc {
		inf.Notes = append(inf.Notes, "Stale EOO/AOO results may invalidate this suggestion; recompute before relying on it.")
	}

	return inf
}

// InferForProject runs InferCriterionB on a project's stored results. An EOO
// result without a hull (fewer than three points) counts as unavailable.
func InferForProject(p *model.Project, eooStale, aooStale bool) Inference {
	in := Input{EooStale: eooStale, AooStale: aooStale, Assessment: p.Assessment}
	if p.Results.Eoo.HasHull() {
		v := p.Results.Eoo.AreaKm2
		in.EooKm2 = &v
	}
	if p.Results.Aoo != nil {
		v := p.Results.Aoo.AreaKm2
		in.AooKm2 = &v
	}
	return InferCriterionB(in)
}
