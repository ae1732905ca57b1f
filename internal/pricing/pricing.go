package pricing

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/example/carpool/internal/observability"
)

// Features is the input contract shared with the external scorer.
type Features struct {
	DistanceKm  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	Seats       int       `json:"seats"`
	When        time.Time `json:"when"`
}

// Strategy is a pluggable primary estimator: an external process, an HTTP
// service, or an in-process function. It may fail; the Estimator absorbs that.
type Strategy interface {
	Price(ctx context.Context, f Features) (float64, error)
}

// HeuristicPrice is the deterministic fallback:
// round(base + km*6 + base*0.15*demand).
func HeuristicPrice(base, distanceKm, demand float64) float64 {
	return math.Round(base + distanceKm*6 + base*0.15*demand)
}

// Estimator wraps a primary Strategy with the fallback heuristic. Estimate
// never returns an error: any primary failure (error, timeout, garbage
// output) degrades to the heuristic so publishing and matching never block
// on a slow or absent scorer.
type Estimator struct {
	Primary Strategy // nil means heuristic-only
	Base    float64
	Demand  float64
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewEstimator builds an Estimator with the default tuning
// (base 100, demand 1, 3s primary timeout).
func NewEstimator(primary Strategy, logger *slog.Logger) *Estimator {
	return &Estimator{
		Primary: primary,
		Base:    100,
		Demand:  1,
		Timeout: 3 * time.Second,
		Logger:  logger,
	}
}

// Estimate returns a price for the given features. The primary strategy gets
// one bounded attempt; there is no retry. Each call is independent, so
// concurrent estimations never interfere.
func (e *Estimator) Estimate(ctx context.Context, f Features) float64 {
	if e.Primary != nil {
		pctx := ctx
		var cancel context.CancelFunc
		if e.Timeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}
		price, err := e.Primary.Price(pctx, f)
		if err == nil && price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0) {
			return math.Round(price)
		}
		observability.PriceFallbacks.Inc()
		if e.Logger != nil {
			e.Logger.Warn("primary pricing unavailable, using heuristic",
				"error", err, "distance_km", f.DistanceKm)
		}
	}
	return HeuristicPrice(e.Base, f.DistanceKm, e.Demand)
}
