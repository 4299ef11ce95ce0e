package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/panjf2000/ants/v2"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/zodiya/funnel-api/external/astro"
	"github.com/zodiya/funnel-api/external/places"
	"github.com/zodiya/funnel-api/external/stripebilling"
	"github.com/zodiya/funnel-api/internal/config"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/infrastructure/repository/memory"
	"github.com/zodiya/funnel-api/internal/infrastructure/repository/postgres"
	"github.com/zodiya/funnel-api/internal/interfaces/httpapi"
	"github.com/zodiya/funnel-api/internal/platform/cache"
	"github.com/zodiya/funnel-api/internal/platform/debounce"
	idgen "github.com/zodiya/funnel-api/internal/platform/id"
	"github.com/zodiya/funnel-api/internal/platform/logging"
	"github.com/zodiya/funnel-api/internal/platform/resilience"
	"github.com/zodiya/funnel-api/internal/usecase"
)

// NewHTTPServer wires the session store, provider clients, and usecase
// services into a ready-to-listen server. The returned cleanup releases
// background resources (debounce timers, enrichment pool, db handle, TTL
// sweeper) and must run after the server has shut down.
func NewHTTPServer(cfg config.Config, logger *logging.Logger, accessLogger *slog.Logger) (*http.Server, func(), error) {
	var (
		sessionRepo funnel.Repository
		db          *sqlx.DB
	)
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		sessionRepo = memory.NewSessionRepository()
	case config.SessionStorePostgres:
		var err error
		db, err = otelsqlx.Connect("postgres", normalizeDBURL(cfg.DBURL),
			otelsql.WithDBSystem("postgresql"),
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect session store: %w", err)
		}
		sessionRepo = postgres.NewSessionRepository(db)
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.SessionStore)
	}

	var placeCache *cache.Store
	if cfg.CacheEnabled {
		placeCache = cache.NewStore(cfg.CacheTTL)
	}

	placeClient := places.NewClient(places.ClientConfig{
		BaseURL:    cfg.ZodiyaBaseURL,
		Timeout:    cfg.ZodiyaTimeout,
		MaxRetries: cfg.ZodiyaMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.ZodiyaCircuitEnabled,
			FailureThreshold: cfg.ZodiyaCircuitFailureCount,
			OpenTimeout:      cfg.ZodiyaCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ZodiyaCircuitHalfOpenMaxReq,
		},
		Cache: placeCache,
	})

	signupClient := astro.NewClient(
		&http.Client{Timeout: cfg.ZodiyaTimeout},
		cfg.ZodiyaBaseURL,
		logger,
	)

	billingClient := stripebilling.NewClient(stripebilling.ClientConfig{
		BaseURL:      cfg.ZodiyaBaseURL,
		StripeAPIURL: cfg.StripeAPIURL,
		StripeSecret: cfg.StripeSecretKey,
		Timeout:      cfg.ZodiyaTimeout,
		Logger:       logger,
	})

	debouncer := debounce.New(cfg.CityDebounceInterval)

	enrichPool, err := ants.NewPool(cfg.GeocodeWorkerCount)
	if err != nil {
		debouncer.Close()
		closeDB(db, logger)
		return nil, nil, fmt.Errorf("create geocode pool: %w", err)
	}

	funnelSvc := usecase.NewFunnelService(
		sessionRepo,
		idgen.NewRandomGenerator(),
		signupClient,
		usecase.FunnelServiceConfig{
			LoadingDuration: cfg.LoadingDuration,
			SessionTTL:      cfg.SessionTTL,
			PortalURL:       cfg.PortalURL,
		},
		logger,
	)
	onboardingSvc := usecase.NewOnboardingService(funnelSvc, placeClient, debouncer, enrichPool, logger)
	checkoutSvc := usecase.NewCheckoutService(funnelSvc, billingClient, logger)
	planSvc := usecase.NewPlanService()

	handler := httpapi.NewHandler(funnelSvc, onboardingSvc, checkoutSvc, planSvc, logger)
	router := httpapi.NewRouter(handler, accessLogger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		debouncer.Close()
		enrichPool.Release()
		closeDB(db, logger)
		return nil, nil, fmt.Errorf("http server addr cannot be empty")
	}

	stopSweeper := startSessionSweeper(funnelSvc, cfg.SweepInterval, logger)

	cleanup := func() {
		stopSweeper()
		debouncer.Close()
		enrichPool.Release()
		closeDB(db, logger)
	}

	return server, cleanup, nil
}

// startSessionSweeper evicts expired sessions on a fixed interval so
// abandoned funnels do not accumulate in the store.
func startSessionSweeper(funnelSvc *usecase.FunnelService, interval time.Duration, logger *logging.Logger) func() {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				removed, err := funnelSvc.SweepExpired(context.Background())
				if err != nil {
					logger.Warn("session sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					logger.Debug("expired sessions removed", "count", removed)
				}
			}
		}
	}()

	return func() { close(done) }
}

func closeDB(db *sqlx.DB, logger *logging.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warn("close db", "error", err)
	}
}
