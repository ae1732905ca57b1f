package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPStrategy posts the feature set to a pricing service and reads back
// {"price": N}. Any service speaking this shape can replace the subprocess
// scorer without touching callers.
type HTTPStrategy struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPStrategy(endpoint string) *HTTPStrategy {
	return &HTTPStrategy{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (s *HTTPStrategy) Price(ctx context.Context, f Features) (float64, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricing service status %d", resp.StatusCode)
	}
	var out struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode pricing response: %w", err)
	}
	return out.Price, nil
}
