// Package geo implements the planar geometry behind EOO and AOO: spherical
// Web Mercator projection, grid binning, and convex hull area.
package geo

import "math"

const (
	// EarthRadius is the spherical Web Mercator radius in meters (EPSG:3857).
	EarthRadius = 6378137.0

	// MaxLat is the latitude at which Web Mercator becomes square.
	MaxLat = 85.05112878
)

// ClampLat limits lat to ±MaxLat.
func ClampLat(lat float64) float64 {
	if lat > MaxLat {
		return MaxLat
	}
	if lat < -MaxLat {
		return -MaxLat
	}
	return lat
}

// ToPlanar projects lon/lat degrees to Web Mercator meters. Latitude is
// clamped first so y stays finite. Callers validate inputs.
func ToPlanar(lon, lat float64) (x, y float64) {
	lonRad := lon * math.Pi / 180
	latRad := ClampLat(lat) * math.Pi / 180

	x = EarthRadius * lonRad
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+latRad/2))
	return x, y
}

// ToGeographic inverts ToPlanar. The output latitude is clamped to ±MaxLat.
func ToGeographic(x, y float64) (lon, lat float64) {
	lon = (x / EarthRadius) * (180 / math.Pi)
	lat = (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * (180 / math.Pi)
	return lon, ClampLat(lat)
}
