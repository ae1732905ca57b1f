package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/carpool/internal/models"
)

// Result is a resolved free-text address.
type Result struct {
	Coordinate models.Coordinate `json:"coordinate"`
	Name       string            `json:"name"`
}

// Resolver turns free-text queries into coordinates.
type Resolver interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

// GoogleResolver resolves addresses via the Google Maps Geocoding API.
type GoogleResolver struct {
	client *maps.Client
}

func NewGoogleResolver(apiKey string) (*GoogleResolver, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleResolver{client: client}, nil
}

func (g *GoogleResolver) Geocode(ctx context.Context, query string) (Result, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		return Result{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("geocode %q: no results", query)
	}
	loc := results[0].Geometry.Location
	return Result{
		Coordinate: models.Coordinate{Lat: loc.Lat, Lng: loc.Lng},
		Name:       results[0].FormattedAddress,
	}, nil
}
