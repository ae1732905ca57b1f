package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/storage"
)

type matchRequest struct {
	Origin      models.Coordinate `json:"origin"`
	Destination models.Coordinate `json:"destination"`
	Seats       int               `json:"seats"`
	When        *time.Time        `json:"when,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Origin.Valid() || !req.Destination.Valid() {
		writeError(w, http.StatusBadRequest, "invalid origin/destination")
		return
	}
	if req.Seats <= 0 {
		req.Seats = 1
	}

	// The store applies the seat/time/status/ownership pre-filters the
	// engine's contract requires.
	candidates, err := s.Store.FindCandidates(r.Context(), storage.CandidateQuery{
		Seats:         req.Seats,
		Now:           time.Now(),
		ExcludeDriver: id.UserID,
	})
	if err != nil {
		s.logger.Error("candidate query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch candidates")
		return
	}

	trip := models.TripRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		Seats:       req.Seats,
		When:        req.When,
	}
	matches := s.Matcher.FindMatches(r.Context(), trip, candidates)

	observability.MatchesTotal.Inc()
	observability.MatchResults.Observe(float64(len(matches)))
	writeJSON(w, http.StatusOK, matches)
}

// handlePrice serves ad-hoc quotes. Primary-strategy failure is invisible
// here: the fallback heuristic keeps this endpoint total.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pricing.Features{
		DistanceKm:  queryFloat(q.Get("distance_km"), 5),
		DurationMin: queryFloat(q.Get("duration_min"), 15),
		Seats:       int(queryFloat(q.Get("seats"), 1)),
		When:        time.Now(),
	}
	if v := q.Get("when"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.When = t
		}
	}
	price := s.Pricing.Estimate(r.Context(), f)
	writeJSON(w, http.StatusOK, map[string]float64{"price": price})
}

func queryFloat(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
