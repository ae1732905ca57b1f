// Package payments places holds on ride fares: a hold when the driver
// accepts a request, capture when the ride completes, cancel on rejection.
package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Holder is what request handlers depend on; Nop covers deployments without
// a Stripe key.
type Holder interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Cancel(ctx context.Context, holdID string) error
}

type StripeClient struct{}

// NewStripeClient sets the package-level API key. Stripe-go keeps the key as
// process-wide state; callers construct one client at startup.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// Hold creates a PaymentIntent with capture_method=manual.
func (s *StripeClient) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeClient) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

func (s *StripeClient) Cancel(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}

type Nop struct{}

func (Nop) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	return "", nil
}
func (Nop) Capture(ctx context.Context, holdID string) error { return nil }
func (Nop) Cancel(ctx context.Context, holdID string) error  { return nil }
