package routing

import (
	"context"
	"math"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
)

// Route is the road-network estimate consumed by the pricing features and
// the /api/route proxy.
type Route struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}

// Client resolves a road route between two coordinates.
type Client interface {
	Route(ctx context.Context, from, to models.Coordinate) (Route, error)
}

// FallbackRoute approximates a route when no routing engine is reachable:
// great-circle distance with a 0.5 km floor, duration at an effective
// 28 km/h city speed.
func FallbackRoute(from, to models.Coordinate) Route {
	km := geo.Haversine(from, to)
	if km < 0.5 {
		km = 0.5
	}
	return Route{
		DistanceKm:  km,
		DurationMin: math.Round(km / 28 * 60),
	}
}
