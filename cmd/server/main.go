package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/carpool/internal/auth"
	"github.com/example/carpool/internal/config"
	"github.com/example/carpool/internal/events"
	"github.com/example/carpool/internal/geocode"
	httpapi "github.com/example/carpool/internal/http"
	"github.com/example/carpool/internal/logging"
	"github.com/example/carpool/internal/match"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/routing"
	"github.com/example/carpool/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// Storage: Postgres when configured, in-memory otherwise.
	var store storage.Store
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			schema, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
			if err != nil {
				logger.Error("read migration", "error", err)
				os.Exit(1)
			}
			if err := pg.Migrate(context.Background(), string(schema)); err != nil {
				logger.Error("migrate", "error", err)
				os.Exit(1)
			}
			logger.Info("migration applied", "file", "001_init.sql")
		}
		store = pg
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	// Pricing: exec strategy wins over HTTP when both are set.
	var strategy pricing.Strategy
	switch {
	case cfg.PricingCommand != "":
		parts := strings.Fields(cfg.PricingCommand)
		strategy = pricing.NewExecStrategy(parts[0], parts[1:]...)
	case cfg.PricingURL != "":
		strategy = pricing.NewHTTPStrategy(cfg.PricingURL)
	}
	estimator := pricing.NewEstimator(strategy, logging.WithComponent(logger, "pricing"))
	estimator.Timeout = cfg.PricingTimeout

	// Routing with a shared Redis cache when available.
	var routeCache routing.Cache
	if cfg.RedisAddr != "" {
		routeCache = routing.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RouteCacheTTL)
	} else {
		routeCache = routing.NewMemCache(cfg.RouteCacheTTL)
	}
	router := &routing.CachedClient{
		Inner: routing.NewOSRMClient(cfg.OSRMEndpoint),
		Cache: routeCache,
	}

	var geocoder geocode.Resolver
	if cfg.GoogleMapsKey != "" {
		g, err := geocode.NewGoogleResolver(cfg.GoogleMapsKey)
		if err != nil {
			logger.Error("geocoder init failed", "error", err)
			os.Exit(1)
		}
		geocoder = g
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	var holder payments.Holder = payments.Nop{}
	if cfg.StripeAPIKey != "" {
		holder = payments.NewStripeClient(cfg.StripeAPIKey)
	}

	wsReg := notify.NewWSRegistry(logging.WithComponent(logger, "notify"))
	notifier := notify.NewPushNotifier(wsReg, cfg.PushEndpoint, cfg.PushKey)

	engine := match.NewEngine(estimator)
	engine.ThresholdKm = cfg.ProximityKm

	srv := httpapi.NewServer(httpapi.Options{
		Store:    store,
		Matcher:  engine,
		Pricing:  estimator,
		Routing:  router,
		Geocoder: geocoder,
		Notify:   notifier,
		Events:   publisher,
		Payments: holder,
		JWT:      auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL),
		WSReg:    wsReg,
		Currency: cfg.Currency,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("carpool api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
