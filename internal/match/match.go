package match

import (
	"context"
	"math"
	"sort"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/pricing"
)

// DefaultThresholdKm is how far a rider's point may sit from a candidate's
// route and still count as "on the way".
const DefaultThresholdKm = 5.0

// pickupSpeedKmPerMin drives the ETA estimate (30 km/h effective approach
// speed); minEtaMinutes models minimum dispatch latency.
const (
	pickupSpeedKmPerMin = 0.5
	minEtaMinutes       = 3
)

// Estimator is the pricing delegate: returns a price, never an error.
type Estimator interface {
	Estimate(ctx context.Context, f pricing.Features) float64
}

// Engine scores candidate rides against a trip request. It holds no mutable
// state, so one Engine is safe for concurrent use across requests.
//
// Callers must supply candidates already filtered to active offers with
// enough seats and a future departure; the engine does not re-check those.
type Engine struct {
	ThresholdKm float64
	Pricing     Estimator

	// Skipped, when set, observes candidates dropped for malformed
	// geometry so the caller's logging layer can warn about them.
	Skipped func(rideID string)
}

// NewEngine returns an Engine with the default proximity threshold.
func NewEngine(est Estimator) *Engine {
	return &Engine{ThresholdKm: DefaultThresholdKm, Pricing: est}
}

// FindMatches scores each candidate against the trip, keeps those whose
// route passes within the threshold of both rider endpoints, and returns
// them sorted by descending score. Equal scores keep input order. An empty
// slice is a valid result, not an error.
func (e *Engine) FindMatches(ctx context.Context, trip models.TripRequest, candidates []models.RideOffer) []models.MatchResult {
	threshold := e.ThresholdKm
	if threshold <= 0 {
		threshold = DefaultThresholdKm
	}

	results := make([]models.MatchResult, 0, len(candidates))
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		c := &candidates[i]
		if !c.Origin.Valid() || !c.Destination.Valid() {
			observability.CandidatesSkipped.Inc()
			if e.Skipped != nil {
				e.Skipped(c.ID)
			}
			continue
		}

		pickupKm := geo.Haversine(trip.Origin, c.Origin)
		dropKm := geo.Haversine(trip.Destination, c.Destination)

		originToPath := geo.PointToSegment(c.Origin, c.Destination, trip.Origin)
		destToPath := geo.PointToSegment(c.Origin, c.Destination, trip.Destination)

		// Hard filter, not a scoring penalty.
		if originToPath >= threshold || destToPath >= threshold {
			continue
		}

		results = append(results, models.MatchResult{
			RideID:      c.ID,
			DriverName:  c.DriverName,
			Origin:      c.Origin,
			Destination: c.Destination,
			When:        c.When,
			Seats:       c.Seats,
			PickupKm:    pickupKm,
			DropKm:      dropKm,
			AlongRoute:  true,
			Score:       round3(1 / (1 + pickupKm + dropKm)),
			Price:       e.priceFor(ctx, c),
			EtaMinutes:  etaMinutes(pickupKm),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func (e *Engine) priceFor(ctx context.Context, c *models.RideOffer) float64 {
	if c.HasPrice() {
		return *c.Price
	}
	routeKm := geo.Haversine(c.Origin, c.Destination)
	if e.Pricing == nil {
		return pricing.HeuristicPrice(100, routeKm, 1)
	}
	return e.Pricing.Estimate(ctx, pricing.Features{
		DistanceKm: routeKm,
		Seats:      c.Seats,
		When:       c.When,
	})
}

func etaMinutes(pickupKm float64) int {
	eta := int(math.Round(pickupKm / pickupSpeedKmPerMin))
	if eta < minEtaMinutes {
		return minEtaMinutes
	}
	return eta
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
