package model

import "time"

// LonLat is a geographic position in degrees.
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Ring is a closed polygon ring: the last position repeats the first.
type Ring []LonLat

// GridCell is one occupied AOO cell. CX and CY index the cell in Web Mercator
// meters; Ring is its outline in geographic coordinates.
type GridCell struct {
	CX   int64 `json:"cx"`
	CY   int64 `json:"cy"`
	Ring Ring  `json:"ring"`
}

// EooResult is one Extent of Occurrence computation. Results are never
// mutated; a later computation replaces them.
type EooResult struct {
	AreaKm2    float64   `json:"area_km2"`
	Hull       Ring      `json:"hull"`
	PointsUsed int       `json:"points_used"`
	InputHash  string    `json:"input_hash"`
	ComputedAt time.Time `json:"computed_at"`
}

// HasHull reports whether a hull polygon was produced.
func (r *EooResult) HasHull() bool {
	return r != nil && len(r.Hull) > 0
}

// AooResult is one Area of Occupancy computation.
type AooResult struct {
	AreaKm2        float64    `json:"area_km2"`
	CellCount      int        `json:"cell_count"`
	CellSizeMeters float64    `json:"cell_size_meters"`
	Grid           []GridCell `json:"grid"`
	PointsUsed     int        `json:"points_used"`
	InputHash      string     `json:"input_hash"`
	ComputedAt     time.Time  `json:"computed_at"`
}
