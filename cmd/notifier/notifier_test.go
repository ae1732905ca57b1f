package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/carpool/internal/models"
)

type fakeCounters struct {
	failIncr int
	incrs    int
	decrs    int
	dels     int
}

func (f *fakeCounters) Incr(ctx context.Context, key string) error {
	f.incrs++
	if f.incrs <= f.failIncr {
		return errors.New("incr fail")
	}
	return nil
}

func (f *fakeCounters) Decr(ctx context.Context, key string) error {
	f.decrs++
	return nil
}

func (f *fakeCounters) Del(ctx context.Context, key string) error {
	f.dels++
	return nil
}

func TestApplyEventMapping(t *testing.T) {
	f := &fakeCounters{}
	ctx := context.Background()

	if err := apply(ctx, f, models.RideEvent{Type: models.EventRideRequested, DriverID: "d1"}); err != nil {
		t.Fatalf("requested: %v", err)
	}
	if err := apply(ctx, f, models.RideEvent{Type: models.EventRequestResponded, DriverID: "d1"}); err != nil {
		t.Fatalf("responded: %v", err)
	}
	if err := apply(ctx, f, models.RideEvent{Type: models.EventRideEnded, DriverID: "d1"}); err != nil {
		t.Fatalf("ended: %v", err)
	}
	if f.incrs != 1 || f.decrs != 1 || f.dels != 1 {
		t.Fatalf("unexpected counts: %+v", f)
	}

	// Unknown event types are ignored.
	if err := apply(ctx, f, models.RideEvent{Type: "mystery", DriverID: "d1"}); err != nil {
		t.Fatalf("unknown type should be a no-op, got %v", err)
	}
}

func TestApplyWithRetrySucceedsAfterRetries(t *testing.T) {
	f := &fakeCounters{failIncr: 1}
	e := models.RideEvent{Type: models.EventRideRequested, DriverID: "d1"}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, e, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.incrs < 2 {
		t.Fatalf("expected a retry, got %d calls", f.incrs)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected at least one backoff")
	}
}

func TestApplyWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeCounters{failIncr: 10}
	e := models.RideEvent{Type: models.EventRideRequested, DriverID: "d1"}
	if err := applyWithRetry(context.Background(), f, e, 3, time.Millisecond); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
