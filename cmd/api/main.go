package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/giftwell/giftwell-backend/api/routes"
	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/internal/idempotency"
	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/internal/ratelimit"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/internal/tickets"
	"github.com/giftwell/giftwell-backend/internal/wishlists"
	"github.com/giftwell/giftwell-backend/pkg/config"
	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/logger"
	"github.com/giftwell/giftwell-backend/pkg/metrics"
	"github.com/giftwell/giftwell-backend/pkg/migrate"
	"github.com/giftwell/giftwell-backend/pkg/redis"
	"github.com/giftwell/giftwell-backend/pkg/storage"
	"github.com/giftwell/giftwell-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis only dials when a shared backend asks for it.
	var redisClient *redis.Client
	if usesRedis(cfg) {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	var storageBackend storage.Backend
	switch strings.ToLower(cfg.Storage.Backend) {
	case "memory":
		storageBackend = storage.NewMemoryBackend()
	default:
		gcsClient, err := gcs.NewClient(context.Background(), cfg.Storage, cfg.GCP, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap gcs storage", err)
			os.Exit(1)
		}
		storageBackend = gcsClient
	}

	registry := prometheus.NewRegistry()
	coreMetrics := metrics.NewCoreMetrics(registry)

	wishlistRepo := wishlists.NewRepository(dbClient.DB(), cfg.DB.QueryTimeout)
	itemRepo := items.NewRepository(dbClient.DB(), cfg.DB.QueryTimeout)
	reservationRepo := reservations.NewRepository(dbClient.DB(), cfg.DB.QueryTimeout)
	contributionRepo := contributions.NewRepository(dbClient.DB(), cfg.DB.QueryTimeout)

	reservationEngine, err := reservations.NewEngine(reservations.EngineParams{
		Repo:    reservationRepo,
		Items:   itemRepo,
		Metrics: coreMetrics,
	})
	exitOnWiringError(logg, "reservation engine", err)

	contributionLedger, err := contributions.NewLedger(contributions.LedgerParams{
		Repo:  contributionRepo,
		Items: itemRepo,
	})
	exitOnWiringError(logg, "contribution ledger", err)

	itemService, err := items.NewService(items.ServiceParams{
		Repo:          itemRepo,
		Wishlists:     wishlistRepo,
		Reservations:  reservationRepo,
		Contributions: contributionRepo,
		Logger:        logg,
	})
	exitOnWiringError(logg, "item service", err)

	wishlistService, err := wishlists.NewService(wishlists.ServiceParams{
		Repo:          wishlistRepo,
		Items:         itemRepo,
		Reservations:  reservationRepo,
		Contributions: contributionRepo,
		Tx:            dbClient,
		Storage:       storageBackend,
		Logger:        logg,
	})
	exitOnWiringError(logg, "wishlist service", err)

	ticketManager, err := tickets.NewManager(tickets.ManagerParams{
		Store:     ticketStore(cfg, redisClient),
		Items:     itemRepo,
		Wishlists: wishlistRepo,
		Storage:   storageBackend,
		Config:    cfg.Tickets,
		Download:  cfg.Storage.DownloadURLExpiry,
		Metrics:   coreMetrics,
	})
	exitOnWiringError(logg, "ticket manager", err)

	limiter, err := ratelimit.NewLimiter(ratelimit.LimiterParams{
		Store:   rateLimitStore(cfg, redisClient),
		Window:  cfg.RateLimit.Window,
		Metrics: coreMetrics,
	})
	exitOnWiringError(logg, "rate limiter", err)

	idempotencyCache, err := idempotency.NewCache(idempotency.CacheParams{
		Store:   idempotencyStore(cfg, redisClient),
		TTL:     cfg.Idempotency.TTL,
		Metrics: coreMetrics,
	})
	exitOnWiringError(logg, "idempotency cache", err)

	ready := routes.Readiness{DB: dbClient, Storage: storageBackend}
	if redisClient != nil {
		ready.Redis = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			ready,
			registry,
			wishlistService,
			itemService,
			reservationEngine,
			contributionLedger,
			ticketManager,
			limiter,
			idempotencyCache,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnWiringError(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to wire "+component, err)
	os.Exit(1)
}

func usesRedis(cfg *config.Config) bool {
	for _, backend := range []string{cfg.RateLimit.Backend, cfg.Idempotency.Backend, cfg.Tickets.Backend} {
		if strings.EqualFold(backend, "redis") {
			return true
		}
	}
	return false
}

func rateLimitStore(cfg *config.Config, client *redis.Client) ratelimit.Store {
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") && client != nil {
		return ratelimit.NewRedisStore(client)
	}
	return ratelimit.NewMemoryStore(nil)
}

func idempotencyStore(cfg *config.Config, client *redis.Client) idempotency.Store {
	if strings.EqualFold(cfg.Idempotency.Backend, "redis") && client != nil {
		return idempotency.NewRedisStore(client)
	}
	return idempotency.NewMemoryStore(nil)
}

func ticketStore(cfg *config.Config, client *redis.Client) tickets.Store {
	if strings.EqualFold(cfg.Tickets.Backend, "redis") && client != nil {
		return tickets.NewRedisStore(client)
	}
	return tickets.NewMemoryStore(nil)
}
