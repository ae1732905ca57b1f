package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/carpool/internal/models"
)

func TestFallbackRouteFloor(t *testing.T) {
	a := models.Coordinate{Lat: 13.05, Lng: 80.25}
	r := FallbackRoute(a, a)
	if r.DistanceKm != 0.5 {
		t.Fatalf("expected 0.5 km floor, got %f", r.DistanceKm)
	}
	if r.DurationMin != 1 {
		t.Fatalf("expected 1 min at 28 km/h, got %f", r.DurationMin)
	}
}

func TestOSRMClientRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":12345,"duration":900}]}`)
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	got, err := c.Route(context.Background(), models.Coordinate{Lat: 13, Lng: 80}, models.Coordinate{Lat: 13.1, Lng: 80.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DistanceKm != 12.35 {
		t.Fatalf("expected 12.35 km, got %f", got.DistanceKm)
	}
	if got.DurationMin != 15 {
		t.Fatalf("expected 15 min, got %f", got.DurationMin)
	}
}

func TestOSRMClientNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","routes":[]}`)
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	if _, err := c.Route(context.Background(), models.Coordinate{}, models.Coordinate{Lat: 1}); err == nil {
		t.Fatal("expected error for NoRoute")
	}
}

func TestMemCacheExpiry(t *testing.T) {
	c := NewMemCache(10 * time.Millisecond)
	a := models.Coordinate{Lat: 1, Lng: 2}
	b := models.Coordinate{Lat: 3, Lng: 4}
	ctx := context.Background()

	c.Set(ctx, a, b, Route{DistanceKm: 7, DurationMin: 12})
	if r, ok := c.Get(ctx, a, b); !ok || r.DistanceKm != 7 {
		t.Fatalf("expected hit, got ok=%v r=%+v", ok, r)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(ctx, a, b); ok {
		t.Fatal("expected expiry")
	}
}

type errClient struct{}

func (errClient) Route(ctx context.Context, from, to models.Coordinate) (Route, error) {
	return Route{}, errors.New("engine down")
}

func TestCachedClientDegradesToFallback(t *testing.T) {
	cc := &CachedClient{Inner: errClient{}, Cache: NewMemCache(time.Minute)}
	from := models.Coordinate{Lat: 13.05, Lng: 80.25}
	to := models.Coordinate{Lat: 13.00, Lng: 80.28}
	got := cc.Resolve(context.Background(), from, to)
	want := FallbackRoute(from, to)
	if got != want {
		t.Fatalf("expected fallback %+v, got %+v", want, got)
	}
}

type countingClient struct{ calls int }

func (c *countingClient) Route(ctx context.Context, from, to models.Coordinate) (Route, error) {
	c.calls++
	return Route{DistanceKm: 9, DurationMin: 20}, nil
}

func TestCachedClientCachesHits(t *testing.T) {
	inner := &countingClient{}
	cc := &CachedClient{Inner: inner, Cache: NewMemCache(time.Minute)}
	from := models.Coordinate{Lat: 13.05, Lng: 80.25}
	to := models.Coordinate{Lat: 13.00, Lng: 80.28}

	ctx := context.Background()
	cc.Resolve(ctx, from, to)
	cc.Resolve(ctx, from, to)
	if inner.calls != 1 {
		t.Fatalf("expected single engine call, got %d", inner.calls)
	}
}
