// Package notify delivers fire-and-forget ride-request signals keyed by
// driver identity. No acknowledgment, no delivery guarantee: a driver who is
// offline simply misses the signal and sees the request on next fetch.
package notify

import "github.com/example/carpool/internal/models"

// Signal is the payload pushed to a driver's device.
type Signal struct {
	Type      string            `json:"type"`
	RideID    string            `json:"ride_id"`
	RequestID string            `json:"request_id,omitempty"`
	Status    string            `json:"status,omitempty"`
	From      string            `json:"from,omitempty"`
	Trip      *models.RideOffer `json:"trip,omitempty"`
}

// Notifier delivers a signal to one user. Implementations are best-effort.
type Notifier interface {
	Notify(userID string, s Signal) error
}

// Nop discards every signal; used when no transport is configured.
type Nop struct{}

func (Nop) Notify(userID string, s Signal) error { return nil }
