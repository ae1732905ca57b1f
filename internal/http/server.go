package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool/internal/auth"
	"github.com/example/carpool/internal/events"
	"github.com/example/carpool/internal/geocode"
	"github.com/example/carpool/internal/match"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/routing"
	"github.com/example/carpool/internal/storage"
)

// Server wires the HTTP surface over the matching core and its
// collaborators. Optional collaborators (geocoder, events, payments) may be
// nil/no-op; core matching and pricing always work.
type Server struct {
	Store    storage.Store
	Matcher  *match.Engine
	Pricing  *pricing.Estimator
	Routing  *routing.CachedClient
	Geocoder geocode.Resolver
	Notify   notify.Notifier
	Events   events.Publisher
	Payments payments.Holder
	JWT      *auth.JWTService

	Currency string
	WSReg    *notify.WSRegistry

	// holds tracks every open payment-hold ID per ride; a ride with
	// multiple accepted requests carries one hold per rider, and
	// end/delete settles them all.
	holdMu sync.Mutex
	holds  map[string][]string

	logger *slog.Logger
	mux    *mux.Router
}

// Options carries the collaborators for NewServer.
type Options struct {
	Store    storage.Store
	Matcher  *match.Engine
	Pricing  *pricing.Estimator
	Routing  *routing.CachedClient
	Geocoder geocode.Resolver
	Notify   notify.Notifier
	Events   events.Publisher
	Payments payments.Holder
	JWT      *auth.JWTService
	WSReg    *notify.WSRegistry
	Currency string
	Logger   *slog.Logger
}

func NewServer(o Options) *Server {
	s := &Server{
		Store:    o.Store,
		Matcher:  o.Matcher,
		Pricing:  o.Pricing,
		Routing:  o.Routing,
		Geocoder: o.Geocoder,
		Notify:   o.Notify,
		Events:   o.Events,
		Payments: o.Payments,
		JWT:      o.JWT,
		WSReg:    o.WSReg,
		Currency: o.Currency,
		holds:    make(map[string][]string),
		logger:   o.Logger,
		mux:      mux.NewRouter(),
	}
	if s.Notify == nil {
		s.Notify = notify.Nop{}
	}
	if s.Events == nil {
		s.Events = events.Nop{}
	}
	if s.Payments == nil {
		s.Payments = payments.Nop{}
	}
	if s.Routing == nil {
		// No engine, no cache: Resolve degrades to the haversine fallback.
		s.Routing = &routing.CachedClient{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.Currency == "" {
		s.Currency = "inr"
	}
	s.Matcher.Skipped = func(rideID string) {
		s.logger.Warn("skipping malformed candidate", "ride_id", rideID)
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/signup", s.handleSignup).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	s.mux.Handle("/api/me", s.authenticated(s.handleMe)).Methods(http.MethodGet)

	s.mux.Handle("/api/rides", s.authenticated(s.handlePublishRide)).Methods(http.MethodPost)
	s.mux.Handle("/api/rides", s.authenticated(s.handleListRides)).Methods(http.MethodGet)
	s.mux.Handle("/api/rides/my", s.authenticated(s.handleMyRides)).Methods(http.MethodGet)
	s.mux.Handle("/api/rides/{id}", s.authenticated(s.handleGetRide)).Methods(http.MethodGet)
	s.mux.Handle("/api/rides/{id}", s.authenticated(s.handleDeleteRide)).Methods(http.MethodDelete)
	s.mux.Handle("/api/rides/{id}/request", s.authenticated(s.handleRequestRide)).Methods(http.MethodPost)
	s.mux.Handle("/api/rides/{id}/respond", s.authenticated(s.handleRespondRequest)).Methods(http.MethodPost)
	s.mux.Handle("/api/rides/{id}/end", s.authenticated(s.handleEndRide)).Methods(http.MethodPost)

	s.mux.Handle("/api/match", s.authenticated(s.handleMatch)).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/price", s.handlePrice).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/geocode", s.handleGeocode).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/route", s.handleRoute).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{
	// Browsers on other origins are allowed; signals carry no secrets.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS attaches a notification socket for a user. The token travels as
// a query parameter because browsers cannot set headers on WS handshakes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	token := r.URL.Query().Get("token")
	claims, err := s.JWT.ValidateToken(token)
	if err != nil || claims.UserID != userID {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.WSReg.Add(userID, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
