package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/carpool/internal/auth"
	"github.com/example/carpool/internal/match"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/routing"
	"github.com/example/carpool/internal/storage"
)

type recordingNotifier struct {
	signals []struct {
		UserID string
		Signal notify.Signal
	}
}

func (r *recordingNotifier) Notify(userID string, s notify.Signal) error {
	r.signals = append(r.signals, struct {
		UserID string
		Signal notify.Signal
	}{userID, s})
	return nil
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	est := pricing.NewEstimator(nil, logger)
	notifier := &recordingNotifier{}
	srv := NewServer(Options{
		Store:   store,
		Matcher: match.NewEngine(est),
		Pricing: est,
		Routing: &routing.CachedClient{}, // no engine: deterministic fallback
		Notify:  notifier,
		JWT:     auth.NewJWTService("test_secret", time.Hour),
		WSReg:   notify.NewWSRegistry(logger),
		Logger:  logger,
	})
	return srv, store, notifier
}

func signup(t *testing.T, srv *Server, name, email, role string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":"pw123","role":%q}`, name, email, role)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/signup", bytes.NewBufferString(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status %d body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	login := fmt.Sprintf(`{"email":%q,"password":"pw123"}`, email)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(login)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func doJSON(srv *Server, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/api/match", "", matchRequest{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSignupLoginMe(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := signup(t, srv, "Asha", "asha@example.com", "rider")

	rec := doJSON(srv, http.MethodGet, "/api/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	var u userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Email != "asha@example.com" || u.Role != "rider" {
		t.Fatalf("unexpected identity: %+v", u)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	srv, _, _ := newTestServer(t)
	signup(t, srv, "Asha", "asha@example.com", "rider")
	rec := doJSON(srv, http.MethodPost, "/api/signup", "", signupRequest{
		Name: "Clone", Email: "asha@example.com", Password: "pw", Role: "rider",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", rec.Code)
	}
}

func TestPublishRideQuotesPriceWhenAbsent(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := signup(t, srv, "Dev", "dev@example.com", "driver")

	when := time.Now().Add(2 * time.Hour)
	rec := doJSON(srv, http.MethodPost, "/api/rides", token, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       3,
		When:        &when,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish: status %d body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Ride models.RideOffer `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ride.Price == nil || *resp.Ride.Price <= 0 {
		t.Fatalf("expected a quoted price, got %+v", resp.Ride.Price)
	}
}

func TestPublishRideRejectsBadCoordinates(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := signup(t, srv, "Dev", "dev@example.com", "driver")
	rec := doJSON(srv, http.MethodPost, "/api/rides", token, publishRideRequest{
		Origin:      models.Coordinate{Lat: 91, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMatchEndToEnd(t *testing.T) {
	srv, store, _ := newTestServer(t)
	riderToken := signup(t, srv, "Rider", "rider@example.com", "rider")

	price := 150.0
	ride := &models.RideOffer{
		DriverID:    "driver-1",
		DriverName:  "Dev",
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       3,
		Price:       &price,
		When:        time.Now().Add(time.Hour),
	}
	if err := store.CreateRide(context.Background(), ride); err != nil {
		t.Fatalf("seed ride: %v", err)
	}

	rec := doJSON(srv, http.MethodPost, "/api/match", riderToken, matchRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("match: status %d body %s", rec.Code, rec.Body)
	}
	var matches []models.MatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Score != 1.0 || matches[0].Price != 150 {
		t.Fatalf("unexpected match: %+v", matches[0])
	}
}

func TestMatchEmptyResultIsOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := signup(t, srv, "Rider", "rider@example.com", "rider")
	rec := doJSON(srv, http.MethodPost, "/api/match", token, matchRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty match, got %d", rec.Code)
	}
	var matches []models.MatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty list, got %d", len(matches))
	}
}

func TestRequestAndRespondFlow(t *testing.T) {
	srv, store, notifier := newTestServer(t)
	driverToken := signup(t, srv, "Dev", "dev@example.com", "driver")
	riderToken := signup(t, srv, "Asha", "asha@example.com", "rider")

	when := time.Now().Add(time.Hour)
	rec := doJSON(srv, http.MethodPost, "/api/rides", driverToken, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       2,
		When:        &when,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish: %d", rec.Code)
	}
	var pub struct {
		Ride models.RideOffer `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rideID := pub.Ride.ID

	// Driver cannot request own ride.
	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/request", driverToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self-request: expected 400, got %d", rec.Code)
	}

	// Rider requests; driver gets a fire-and-forget signal.
	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/request", riderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("request: %d body %s", rec.Code, rec.Body)
	}
	if len(notifier.signals) != 1 || notifier.signals[0].Signal.Type != "ride_request" {
		t.Fatalf("expected one ride_request signal, got %+v", notifier.signals)
	}
	if trip := notifier.signals[0].Signal.Trip; trip == nil || trip.ID != rideID {
		t.Fatalf("signal must carry the requested trip, got %+v", notifier.signals[0].Signal)
	}

	// Duplicate request rejected.
	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/request", riderToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", rec.Code)
	}

	stored, err := store.GetRide(context.Background(), rideID)
	if err != nil || len(stored.Requests) != 1 {
		t.Fatalf("stored requests: %v %+v", err, stored)
	}
	reqID := stored.Requests[0].ID

	// Only the driver may respond.
	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/respond", riderToken, respondRequest{RequestID: reqID, Action: "accepted"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner respond: expected 403, got %d", rec.Code)
	}

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/respond", driverToken, respondRequest{RequestID: reqID, Action: "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: %d body %s", rec.Code, rec.Body)
	}
	if got := notifier.signals[len(notifier.signals)-1]; got.Signal.Type != "request_response" || got.Signal.Status != "accepted" {
		t.Fatalf("expected request_response signal, got %+v", got)
	}

	// Terminal: responding again fails.
	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/respond", driverToken, respondRequest{RequestID: reqID, Action: "rejected"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("settled respond: expected 400, got %d", rec.Code)
	}
}

func TestEndRide(t *testing.T) {
	srv, store, _ := newTestServer(t)
	driverToken := signup(t, srv, "Dev", "dev@example.com", "driver")

	when := time.Now().Add(time.Hour)
	rec := doJSON(srv, http.MethodPost, "/api/rides", driverToken, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		When:        &when,
	})
	var pub struct {
		Ride models.RideOffer `json:"ride"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &pub)

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+pub.Ride.ID+"/end", driverToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: %d", rec.Code)
	}
	stored, _ := store.GetRide(context.Background(), pub.Ride.ID)
	if stored.Status != models.RideEnded {
		t.Fatalf("expected ended, got %s", stored.Status)
	}
}

type recordingHolder struct {
	held     int64
	count    int
	captured []string
	canceled []string
}

func (h *recordingHolder) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	h.held = amount
	h.count++
	return fmt.Sprintf("hold_%d", h.count), nil
}
func (h *recordingHolder) Capture(ctx context.Context, holdID string) error {
	h.captured = append(h.captured, holdID)
	return nil
}
func (h *recordingHolder) Cancel(ctx context.Context, holdID string) error {
	h.canceled = append(h.canceled, holdID)
	return nil
}

func TestHoldPlacedOnAcceptAndCapturedOnEnd(t *testing.T) {
	srv, store, _ := newTestServer(t)
	holder := &recordingHolder{}
	srv.Payments = holder

	driverToken := signup(t, srv, "Dev", "dev@example.com", "driver")
	riderToken := signup(t, srv, "Asha", "asha@example.com", "rider")

	price := 200.0
	when := time.Now().Add(time.Hour)
	rec := doJSON(srv, http.MethodPost, "/api/rides", driverToken, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       2,
		Price:       &price,
		When:        &when,
	})
	var pub struct {
		Ride models.RideOffer `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rideID := pub.Ride.ID

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/request", riderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("request: %d", rec.Code)
	}
	stored, _ := store.GetRide(context.Background(), rideID)
	reqID := stored.Requests[0].ID

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/respond", driverToken, respondRequest{RequestID: reqID, Action: "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: %d body %s", rec.Code, rec.Body)
	}
	if holder.held != 20000 {
		t.Fatalf("expected hold of 20000 minor units, got %d", holder.held)
	}

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/end", driverToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: %d", rec.Code)
	}
	if len(holder.captured) != 1 || holder.captured[0] != "hold_1" {
		t.Fatalf("expected hold captured on end, got %+v", holder)
	}
	if len(holder.canceled) != 0 {
		t.Fatalf("unexpected cancels: %+v", holder.canceled)
	}
}

func TestAllHoldsSettledWithMultipleAcceptedRiders(t *testing.T) {
	srv, store, _ := newTestServer(t)
	holder := &recordingHolder{}
	srv.Payments = holder

	driverToken := signup(t, srv, "Dev", "dev@example.com", "driver")
	riderA := signup(t, srv, "Asha", "asha@example.com", "rider")
	riderB := signup(t, srv, "Bala", "bala@example.com", "rider")

	price := 100.0
	when := time.Now().Add(time.Hour)
	rec := doJSON(srv, http.MethodPost, "/api/rides", driverToken, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		Seats:       2,
		Price:       &price,
		When:        &when,
	})
	var pub struct {
		Ride models.RideOffer `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rideID := pub.Ride.ID

	for _, token := range []string{riderA, riderB} {
		if rec := doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/request", token, nil); rec.Code != http.StatusOK {
			t.Fatalf("request: %d", rec.Code)
		}
	}
	stored, _ := store.GetRide(context.Background(), rideID)
	if len(stored.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(stored.Requests))
	}
	for _, req := range stored.Requests {
		rec := doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/respond", driverToken, respondRequest{RequestID: req.ID, Action: "accepted"})
		if rec.Code != http.StatusOK {
			t.Fatalf("respond: %d body %s", rec.Code, rec.Body)
		}
	}

	rec = doJSON(srv, http.MethodPost, "/api/rides/"+rideID+"/end", driverToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: %d", rec.Code)
	}
	if len(holder.captured) != 2 {
		t.Fatalf("expected both riders' holds captured, got %v", holder.captured)
	}
}

func TestServerWithoutRoutingUsesFallback(t *testing.T) {
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	est := pricing.NewEstimator(nil, logger)
	srv := NewServer(Options{
		Store:   store,
		Matcher: match.NewEngine(est),
		Pricing: est,
		JWT:     auth.NewJWTService("test_secret", time.Hour),
		WSReg:   notify.NewWSRegistry(logger),
		Logger:  logger,
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/route?origin_lat=13.05&origin_lng=80.25&dest_lat=13.00&dest_lng=80.28", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("route without routing collaborator: %d body %s", rec.Code, rec.Body)
	}

	token := signup(t, srv, "Dev", "dev@example.com", "driver")
	when := time.Now().Add(time.Hour)
	rec = doJSON(srv, http.MethodPost, "/api/rides", token, publishRideRequest{
		Origin:      models.Coordinate{Lat: 13.05, Lng: 80.25},
		Destination: models.Coordinate{Lat: 13.00, Lng: 80.28},
		When:        &when,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish without routing collaborator: %d body %s", rec.Code, rec.Body)
	}
}

func TestPriceEndpointNeverFails(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/price?distance_km=10&duration_min=20&seats=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("price: %d", rec.Code)
	}
	var resp map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["price"] != 175 {
		t.Fatalf("expected heuristic 175, got %f", resp["price"])
	}
}

func TestRouteFallback(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/route?origin_lat=13.05&origin_lng=80.25&dest_lat=13.00&dest_lng=80.28", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("route: %d", rec.Code)
	}
	var route routing.Route
	if err := json.Unmarshal(rec.Body.Bytes(), &route); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if route.DistanceKm <= 0 || route.DurationMin <= 0 {
		t.Fatalf("expected fallback route, got %+v", route)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}
