package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/storage"
)

type publishRideRequest struct {
	Origin      models.Coordinate `json:"origin"`
	Destination models.Coordinate `json:"destination"`
	Seats       int               `json:"seats"`
	Price       *float64          `json:"price,omitempty"`
	When        *time.Time        `json:"when,omitempty"`
	Date        string            `json:"date,omitempty"` // "2006-01-02"
	Time        string            `json:"time,omitempty"` // "15:04"
}

// departureTime accepts either an explicit timestamp or date+time parts.
func (p *publishRideRequest) departureTime() time.Time {
	if p.When != nil {
		return *p.When
	}
	if p.Date != "" && p.Time != "" {
		if t, err := time.Parse("2006-01-02T15:04", p.Date+"T"+p.Time); err == nil {
			return t
		}
	}
	return time.Now()
}

func (s *Server) handlePublishRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var req publishRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Origin.Valid() || !req.Destination.Valid() {
		writeError(w, http.StatusBadRequest, "origin/destination with {lat,lng} required")
		return
	}
	if req.Seats <= 0 {
		req.Seats = 1
	}
	when := req.departureTime()

	ride := &models.RideOffer{
		DriverID:    id.UserID,
		DriverName:  id.Name,
		Origin:      req.Origin,
		Destination: req.Destination,
		Seats:       req.Seats,
		When:        when,
		Status:      models.RideActive,
	}

	// Respect an explicit price; otherwise quote one now. The route lookup
	// and estimator both degrade internally, so publishing never fails on a
	// slow collaborator.
	if req.Price != nil {
		ride.Price = req.Price
	} else {
		route := s.Routing.Resolve(r.Context(), req.Origin, req.Destination)
		price := s.Pricing.Estimate(r.Context(), pricing.Features{
			DistanceKm:  route.DistanceKm,
			DurationMin: route.DurationMin,
			Seats:       req.Seats,
			When:        when,
		})
		ride.Price = &price
	}

	if err := s.Store.CreateRide(r.Context(), ride); err != nil {
		s.logger.Error("create ride failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to publish ride")
		return
	}
	observability.RidesPublished.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"message": "ride published", "ride": ride})
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rides, err := s.Store.ListOpenRides(r.Context(), id.UserID, time.Now())
	if err != nil {
		s.logger.Error("list rides failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch rides")
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleMyRides(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rides, err := s.Store.ListRidesByDriver(r.Context(), id.UserID)
	if err != nil {
		s.logger.Error("list my rides failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch rides")
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["id"]
	ride, err := s.Store.GetRide(r.Context(), rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ride not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch ride")
		return
	}

	resp := map[string]any{"ride": ride}
	if driver, err := s.Store.GetUserByID(r.Context(), ride.DriverID); err == nil {
		resp["driver"] = userResponse{ID: driver.ID, Name: driver.Name, Email: driver.Email, Role: driver.Role}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rideID := mux.Vars(r)["id"]
	switch err := s.Store.DeleteRide(r.Context(), rideID, id.UserID); {
	case err == nil:
		s.settleHolds(r, rideID, false)
		writeJSON(w, http.StatusOK, map[string]string{"message": "ride deleted"})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
	case errors.Is(err, storage.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not authorized to delete this ride")
	default:
		writeError(w, http.StatusInternalServerError, "failed to delete ride")
	}
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rideID := mux.Vars(r)["id"]

	req := models.RideRequest{
		UserID:      id.UserID,
		UserName:    id.Name,
		Status:      models.RequestPending,
		RequestedAt: time.Now(),
	}
	switch err := s.Store.AddRequest(r.Context(), rideID, req); {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
		return
	case errors.Is(err, storage.ErrOwnRide):
		writeError(w, http.StatusBadRequest, "you cannot request your own ride")
		return
	case errors.Is(err, storage.ErrDuplicateRequest):
		writeError(w, http.StatusBadRequest, "you already requested this ride")
		return
	default:
		s.logger.Error("add request failed", "error", err, "ride_id", rideID)
		writeError(w, http.StatusInternalServerError, "failed to request ride")
		return
	}
	observability.RequestsSent.Inc()

	ride, err := s.Store.GetRide(r.Context(), rideID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch ride")
		return
	}

	// Fire-and-forget: the driver misses the signal if offline.
	_ = s.Notify.Notify(ride.DriverID, notify.Signal{
		Type:   "ride_request",
		RideID: rideID,
		From:   id.Name,
		Trip:   ride,
	})
	if err := s.Events.Publish(r.Context(), models.RideEvent{
		Type:     models.EventRideRequested,
		RideID:   rideID,
		DriverID: ride.DriverID,
		UserID:   id.UserID,
	}); err != nil {
		s.logger.Warn("event publish failed", "error", err, "ride_id", rideID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "ride request sent", "ride": ride})
}

type respondRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"` // accepted | rejected
}

func (s *Server) handleRespondRequest(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rideID := mux.Vars(r)["id"]

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RequestID == "" || (req.Action != models.RequestAccepted && req.Action != models.RequestRejected) {
		writeError(w, http.StatusBadRequest, "request_id and action (accepted|rejected) required")
		return
	}

	updated, err := s.Store.UpdateRequestStatus(r.Context(), rideID, id.UserID, req.RequestID, req.Action)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride or request not found")
		return
	case errors.Is(err, storage.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not authorized to respond to this ride")
		return
	case errors.Is(err, storage.ErrRequestSettled):
		writeError(w, http.StatusBadRequest, "request already settled")
		return
	default:
		s.logger.Error("respond failed", "error", err, "ride_id", rideID)
		writeError(w, http.StatusInternalServerError, "failed to respond")
		return
	}

	if req.Action == models.RequestAccepted {
		s.holdFare(r, rideID, updated.UserID)
	}

	_ = s.Notify.Notify(updated.UserID, notify.Signal{
		Type:      "request_response",
		RideID:    rideID,
		RequestID: updated.ID,
		Status:    updated.Status,
	})
	if err := s.Events.Publish(r.Context(), models.RideEvent{
		Type:      models.EventRequestResponded,
		RideID:    rideID,
		DriverID:  id.UserID,
		UserID:    updated.UserID,
		RequestID: updated.ID,
		Status:    updated.Status,
	}); err != nil {
		s.logger.Warn("event publish failed", "error", err, "ride_id", rideID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "request " + req.Action, "request": updated})
}

// holdFare places a best-effort payment hold for the ride's price. A
// payments failure never blocks the accept flow.
func (s *Server) holdFare(r *http.Request, rideID, riderID string) {
	ride, err := s.Store.GetRide(r.Context(), rideID)
	if err != nil || !ride.HasPrice() {
		return
	}
	amount := int64(*ride.Price * 100)
	if holdID, err := s.Payments.Hold(r.Context(), amount, s.Currency, riderID); err != nil {
		s.logger.Warn("payment hold failed", "error", err, "ride_id", rideID)
	} else if holdID != "" {
		s.holdMu.Lock()
		s.holds[rideID] = append(s.holds[rideID], holdID)
		s.holdMu.Unlock()
		s.logger.Info("payment hold placed", "ride_id", rideID, "hold_id", holdID)
	}
}

// settleHolds captures or cancels every open hold for the ride.
// Best-effort, like the holds themselves.
func (s *Server) settleHolds(r *http.Request, rideID string, capture bool) {
	s.holdMu.Lock()
	holdIDs := s.holds[rideID]
	delete(s.holds, rideID)
	s.holdMu.Unlock()

	for _, holdID := range holdIDs {
		var err error
		if capture {
			err = s.Payments.Capture(r.Context(), holdID)
		} else {
			err = s.Payments.Cancel(r.Context(), holdID)
		}
		if err != nil {
			s.logger.Warn("payment settle failed", "error", err, "ride_id", rideID, "hold_id", holdID)
		}
	}
}

func (s *Server) handleEndRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rideID := mux.Vars(r)["id"]
	switch err := s.Store.EndRide(r.Context(), rideID, id.UserID); {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
		return
	case errors.Is(err, storage.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not authorized to end this ride")
		return
	default:
		writeError(w, http.StatusInternalServerError, "failed to end ride")
		return
	}
	s.settleHolds(r, rideID, true)
	if err := s.Events.Publish(r.Context(), models.RideEvent{
		Type:     models.EventRideEnded,
		RideID:   rideID,
		DriverID: id.UserID,
	}); err != nil {
		s.logger.Warn("event publish failed", "error", err, "ride_id", rideID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ride ended"})
}
