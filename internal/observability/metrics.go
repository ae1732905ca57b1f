package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "matches_total", Help: "Total match searches served"})
	MatchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "carpool", Name: "match_results", Help: "Matches returned per search",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	CandidatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "match_candidates_skipped_total", Help: "Candidates dropped for malformed geometry"})
	PriceFallbacks    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "price_fallback_total", Help: "Price estimations served by the heuristic fallback"})
	RidesPublished    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "rides_published_total", Help: "Rides published"})
	RequestsSent      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "ride_requests_total", Help: "Ride requests sent"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
