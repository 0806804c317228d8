package model

import "math"

// LatLonReason explains why a coordinate pair was rejected.
type LatLonReason string

const (
	ReasonNotFinite     LatLonReason = "not-finite"
	ReasonLatOutOfRange LatLonReason = "lat-out-of-range"
	ReasonLonOutOfRange LatLonReason = "lon-out-of-range"
	ReasonZeroZero      LatLonReason = "zero-zero"
)

// LatLonValidation is the outcome of ValidateLatLon. Reason is empty when OK.
type LatLonValidation struct {
	OK     bool         `json:"ok"`
	Reason LatLonReason `json:"reason,omitempty"`
}

// ValidateLatLon checks that a coordinate pair is finite, in range, and not
// the (0,0) "no data" sentinel.
func ValidateLatLon(lat, lon float64) LatLonValidation {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return LatLonValidation{Reason: ReasonNotFinite}
	}
	if lat < -90 || lat > 90 {
		return LatLonValidation{Reason: ReasonLatOutOfRange}
	}
	if lon < -180 || lon > 180 {
		return LatLonValidation{Reason: ReasonLonOutOfRange}
	}
	if lat == 0 && lon == 0 {
		return LatLonValidation{Reason: ReasonZeroZero}
	}
	return LatLonValidation{OK: true}
}
