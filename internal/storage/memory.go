package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/carpool/internal/models"
)

// MemoryStore keeps everything in maps behind an RWMutex. Used for local
// runs and tests; PostgresStore is the production path.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.RideOffer
	users map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides: make(map[string]*models.RideOffer),
		users: make(map[string]*models.User),
	}
}

func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.RideOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = NewID()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = models.RideActive
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.RideOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Requests = append([]models.RideRequest(nil), r.Requests...)
	return &cp, nil
}

func (m *MemoryStore) ListOpenRides(ctx context.Context, excludeDriver string, now time.Time) ([]models.RideOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideOffer, 0)
	for _, r := range m.rides {
		if r.DriverID == excludeDriver || r.Status != models.RideActive || r.When.Before(now) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

func (m *MemoryStore) ListRidesByDriver(ctx context.Context, driverID string) ([]models.RideOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideOffer, 0)
	for _, r := range m.rides {
		if r.DriverID != driverID {
			continue
		}
		cp := *r
		cp.Requests = append([]models.RideRequest(nil), r.Requests...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

func (m *MemoryStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.RideOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideOffer, 0)
	for _, r := range m.rides {
		if r.Status != models.RideActive {
			continue
		}
		if r.Seats < q.Seats {
			continue
		}
		if r.When.Before(q.Now) {
			continue
		}
		if q.ExcludeDriver != "" && r.DriverID == q.ExcludeDriver {
			continue
		}
		out = append(out, *r)
	}
	// Deterministic input order for the engine's stable tie-break.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteRide(ctx context.Context, id, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	if r.DriverID != driverID {
		return ErrNotOwner
	}
	delete(m.rides, id)
	return nil
}

func (m *MemoryStore) EndRide(ctx context.Context, id, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	if r.DriverID != driverID {
		return ErrNotOwner
	}
	r.Status = models.RideEnded
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AddRequest(ctx context.Context, rideID string, req models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	if r.DriverID == req.UserID {
		return ErrOwnRide
	}
	for _, existing := range r.Requests {
		if existing.UserID == req.UserID {
			return ErrDuplicateRequest
		}
	}
	if req.ID == "" {
		req.ID = NewID()
	}
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	r.Requests = append(r.Requests, req)
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, rideID, driverID, requestID, status string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.DriverID != driverID {
		return nil, ErrNotOwner
	}
	for i := range r.Requests {
		if r.Requests[i].ID != requestID {
			continue
		}
		if r.Requests[i].Status != models.RequestPending {
			return nil, ErrRequestSettled
		}
		r.Requests[i].Status = status
		r.UpdatedAt = time.Now()
		cp := r.Requests[i]
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range m.users {
		if strings.ToLower(existing.Email) == email {
			return ErrDuplicateEmail
		}
	}
	if u.ID == "" {
		u.ID = NewID()
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
