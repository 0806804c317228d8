package model

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// DefaultCellSizeMeters is the IUCN reference AOO grid (2 km x 2 km).
const DefaultCellSizeMeters = 2000

// Project name bounds, in runes.
const (
	MinProjectNameLen = 3
	MaxProjectNameLen = 80
)

// NormalizeProjectName trims name and truncates it to MaxProjectNameLen.
// Names shorter than MinProjectNameLen are rejected.
func NormalizeProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinProjectNameLen {
		return "", eris.Errorf("model: project name must have at least %d characters", MinProjectNameLen)
	}
	if r := []rune(name); len(r) > MaxProjectNameLen {
		name = strings.TrimSpace(string(r[:MaxProjectNameLen]))
	}
	return name, nil
}

// SubcriterionItem is one of the roman-numeral qualifiers of Criterion B b/c.
type SubcriterionItem string

const (
	ItemI   SubcriterionItem = "i"
	ItemII  SubcriterionItem = "ii"
	ItemIII SubcriterionItem = "iii"
	ItemIV  SubcriterionItem = "iv"
	ItemV   SubcriterionItem = "v"
)

// ItemOrder is the canonical order of subcriterion items.
var ItemOrder = []SubcriterionItem{ItemI, ItemII, ItemIII, ItemIV, ItemV}

// Valid reports whether the item is one of i..v.
func (i SubcriterionItem) Valid() bool {
	return slices.Contains(ItemOrder, i)
}

// ItemFlag is a switchable subcriterion with its selected items.
type ItemFlag struct {
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Items   []SubcriterionItem `json:"items,omitempty" yaml:"items,omitempty"`
}

// Assessment holds the qualitative Criterion B inputs supplied by an assessor.
type Assessment struct {
	SeverelyFragmented  bool     `json:"severely_fragmented" yaml:"severely_fragmented"`
	NumberOfLocations   *int     `json:"number_of_locations,omitempty" yaml:"number_of_locations,omitempty"`
	ContinuingDecline   ItemFlag `json:"continuing_decline" yaml:"continuing_decline"`
	ExtremeFluctuations ItemFlag `json:"extreme_fluctuations" yaml:"extreme_fluctuations"`
}

// Settings holds per-project computation parameters.
type Settings struct {
	AooCellSizeMeters float64 `json:"aoo_cell_size_meters"`
}

// Results holds the latest computed metrics of a project.
type Results struct {
	Eoo *EooResult `json:"eoo,omitempty"`
	Aoo *AooResult `json:"aoo,omitempty"`
}

// Project is a named set of occurrences with its settings, results, and
// assessment.
type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Settings    Settings     `json:"settings"`
	Occurrences []Occurrence `json:"occurrences"`
	Results     Results      `json:"results"`
	Assessment  Assessment   `json:"assessment"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// CellSize returns the project's AOO cell size, falling back to the default
// for projects saved without one.
func (p *Project) CellSize() float64 {
	if p.Settings.AooCellSizeMeters > 0 {
		return p.Settings.AooCellSizeMeters
	}
	return DefaultCellSizeMeters
}
