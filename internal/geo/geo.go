package geo

import (
	"math"

	"github.com/example/carpool/internal/models"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinates. Symmetric, zero for identical points, always finite and
// non-negative for in-range inputs.
func Haversine(a, b models.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	la1 := toRad(a.Lat)
	la2 := toRad(b.Lat)

	x := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// x can drift a hair below 0 for near-identical points.
	if x < 0 {
		x = 0
	}
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(x))
}

// PointToSegment approximates the distance in kilometers from point c to the
// path between a and b, by treating the three pairwise haversine distances as
// a planar triangle and computing its height over side ab (Heron's formula).
// Good enough at city scale; not an exact cross-track distance.
func PointToSegment(a, b, c models.Coordinate) float64 {
	dab := Haversine(a, b)
	if dab == 0 {
		// degenerate segment
		return Haversine(a, c)
	}
	dac := Haversine(a, c)
	dbc := Haversine(b, c)

	s := (dab + dac + dbc) / 2
	// Nearly collinear points can push the product a hair negative.
	area2 := s * (s - dab) * (s - dac) * (s - dbc)
	if area2 < 0 {
		area2 = 0
	}
	area := math.Sqrt(area2)
	return (2 * area) / dab
}

// Midpoint returns the arithmetic midpoint of two coordinates. Fine at the
// short distances this service cares about.
func Midpoint(a, b models.Coordinate) models.Coordinate {
	return models.Coordinate{Lat: (a.Lat + b.Lat) / 2, Lng: (a.Lng + b.Lng) / 2}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
