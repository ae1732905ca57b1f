package models

import (
	"math"
	"time"
)

// Coordinate is a WGS84 point. Area is an optional human-readable label
// used only for display.
type Coordinate struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Area string  `json:"area,omitempty"`
}

// Valid reports whether the coordinate lies within WGS84 bounds and has no
// NaN/Inf components.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// TripRequest is a rider's search. Built per request, never persisted.
type TripRequest struct {
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	Seats       int        `json:"seats"`
	When        *time.Time `json:"when,omitempty"`
}

// Ride statuses.
const (
	RideActive    = "active"
	RideEnded     = "ended"
	RideCancelled = "cancelled"
)

// Ride-request statuses. Pending transitions to accepted or rejected exactly
// once; both are terminal.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// RideOffer is a published carpool trip owned by a driver.
type RideOffer struct {
	ID         string `json:"id"`
	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name"`

	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`

	Seats  int       `json:"seats"`
	Price  *float64  `json:"price,omitempty"` // nil means "quote at match time"
	When   time.Time `json:"when"`
	Status string    `json:"status"`

	Requests []RideRequest `json:"requests,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPrice reports whether the offer carries a usable fixed price.
func (r *RideOffer) HasPrice() bool {
	return r.Price != nil && !math.IsNaN(*r.Price) && !math.IsInf(*r.Price, 0)
}

// RideRequest is a rider's booking request attached to a RideOffer.
type RideRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// MatchResult is a scored candidate for one trip search. Built, returned,
// discarded; never persisted.
type MatchResult struct {
	RideID     string `json:"ride_id"`
	DriverName string `json:"driver_name"`

	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	When        time.Time  `json:"when"`
	Seats       int        `json:"seats"`

	PickupKm   float64 `json:"pickup_km"`
	DropKm     float64 `json:"drop_km"`
	AlongRoute bool    `json:"along_route"`
	Score      float64 `json:"match_score"`
	Price      float64 `json:"price_suggested"`
	EtaMinutes int     `json:"eta_minutes"`
}

// User roles.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// RideEvent is published to Kafka on ride lifecycle transitions so
// downstream consumers (notification fan-out, analytics) can react.
type RideEvent struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id"`
	DriverID  string    `json:"driver_id"`
	UserID    string    `json:"user_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Event types for RideEvent.
const (
	EventRideRequested    = "ride_requested"
	EventRequestResponded = "request_responded"
	EventRideEnded        = "ride_ended"
)
