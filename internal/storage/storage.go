package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/carpool/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEmail   = errors.New("email already in use")
	ErrDuplicateRequest = errors.New("ride already requested by this user")
	ErrOwnRide          = errors.New("cannot request own ride")
	ErrNotOwner         = errors.New("caller does not own this ride")
	ErrRequestSettled   = errors.New("request already accepted or rejected")
)

// CandidateQuery expresses the pre-filters the match engine relies on:
// seats, departure time, status and ownership are enforced here so the
// engine stays a pure scoring function.
type CandidateQuery struct {
	Seats         int
	Now           time.Time
	ExcludeDriver string
}

// RideStore persists ride offers and their request sub-records.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.RideOffer) error
	GetRide(ctx context.Context, id string) (*models.RideOffer, error)
	// ListOpenRides returns others' active future rides sorted by departure.
	ListOpenRides(ctx context.Context, excludeDriver string, now time.Time) ([]models.RideOffer, error)
	ListRidesByDriver(ctx context.Context, driverID string) ([]models.RideOffer, error)
	// FindCandidates returns the already-filtered snapshot fed to the
	// match engine.
	FindCandidates(ctx context.Context, q CandidateQuery) ([]models.RideOffer, error)
	DeleteRide(ctx context.Context, id, driverID string) error
	EndRide(ctx context.Context, id, driverID string) error
	AddRequest(ctx context.Context, rideID string, req models.RideRequest) error
	// UpdateRequestStatus moves a pending request to accepted/rejected.
	UpdateRequestStatus(ctx context.Context, rideID, driverID, requestID, status string) (*models.RideRequest, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Store bundles both for wiring convenience.
type Store interface {
	RideStore
	UserStore
}
