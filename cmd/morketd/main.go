// Command morketd serves the Morket enrichment API.
//
// It wires the Postgres-backed stores, the provider catalog, the credit
// ledger, and the Temporal client behind the HTTP surface in pkg/api.
// Configuration comes from MORKET_* environment variables; see pkg/config.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/api"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/breaker"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/config"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/database"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/enrichment"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/observability"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/telemetry"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/vault"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("morketd: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("morketd: open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Credit telemetry is optional; without ClickHouse the ledger simply
	// records nothing beyond Postgres.
	var pipeline *telemetry.Pipeline
	var recorder credits.EventRecorder
	if cfg.ClickHouseAddr != "" {
		conn, err := telemetry.OpenClickHouse(ctx, telemetry.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("morketd: %v", err)
		}
		if err := telemetry.Migrate(ctx, conn); err != nil {
			log.Fatalf("morketd: %v", err)
		}
		pipeline = telemetry.NewPipeline(telemetry.DefaultPipelineConfig(), telemetry.NewClickHouseSink(conn), logger)
		pipeline.Start(ctx)
		recorder = pipeline
		log.Printf("[morketd] credit telemetry: %s", cfg.ClickHouseAddr)
	}

	store := enrichment.NewStore(db, logger)
	ledger := credits.NewLedger(db, logger, recorder)
	vlt, err := vault.NewVault(db, cfg.MasterKey, logger)
	if err != nil {
		log.Fatalf("morketd: %v", err)
	}
	hooks := webhooks.NewService(db, logger)
	idem := api.NewPostgresIdempotencyStore(db, idempotencyTTL, logger)

	if err := store.Init(ctx); err != nil {
		log.Fatalf("morketd: init enrichment schema: %v", err)
	}
	if err := ledger.Init(ctx); err != nil {
		log.Fatalf("morketd: init credits schema: %v", err)
	}
	if err := vlt.Init(ctx); err != nil {
		log.Fatalf("morketd: init vault schema: %v", err)
	}
	if err := hooks.Init(ctx); err != nil {
		log.Fatalf("morketd: init webhooks schema: %v", err)
	}
	if err := idem.Init(ctx); err != nil {
		log.Fatalf("morketd: init idempotency schema: %v", err)
	}
	log.Printf("[morketd] schemas ready")

	catalog := providers.DefaultCatalog()
	if cfg.ProviderCatalog != "" {
		catalog, err = providers.LoadCatalog(cfg.ProviderCatalog)
		if err != nil {
			log.Fatalf("morketd: %v", err)
		}
	}
	defs, err := catalog.Definitions()
	if err != nil {
		log.Fatalf("morketd: %v", err)
	}

	var pacer providers.Pacer
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		pacer = providers.NewRedisPacer(rdb, defs, logger)
		log.Printf("[morketd] provider pacing: redis %s", cfg.RedisAddr)
	} else {
		pacer = providers.NewLocalPacer(defs, logger)
	}
	for i := range defs {
		defs[i].Adapter = providers.NewHTTPAdapter(defs[i], pacer, logger)
	}
	registry, err := providers.NewRegistry(defs)
	if err != nil {
		log.Fatalf("morketd: %v", err)
	}
	log.Printf("[morketd] provider catalog: %d providers", len(defs))

	metrics, err := observability.New(ctx, observability.DefaultConfig("morketd"))
	if err != nil {
		log.Fatalf("morketd: %v", err)
	}

	br := breaker.New(breaker.Config{
		WindowSize:       cfg.BreakerWindow,
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
		OnStateChange: func(slug string, from, to breaker.State) {
			logger.Warn("circuit transition", "provider", slug, "from", string(from), "to", string(to))
			metrics.RecordBreakerTransition(context.Background(), slug, string(to))
		},
	})

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("morketd: dial temporal: %v", err)
	}
	defer tc.Close()
	log.Printf("[morketd] temporal: %s (queue %s)", cfg.TemporalAddress, cfg.TaskQueue)

	service := enrichment.NewService(store, registry, ledger, enrichment.NewTemporalClient(tc, cfg.TaskQueue), logger)

	server := api.NewServer(api.Deps{
		Enrichment:  service,
		Ledger:      ledger,
		Vault:       vlt,
		Webhooks:    hooks,
		Registry:    registry,
		Breaker:     br,
		DB:          db,
		Metrics:     metrics,
		Idempotency: idem,
		RateLimit:   api.NewRateLimiter(50, 100),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[morketd] listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("morketd: http server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Printf("[morketd] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[morketd] http shutdown: %v", err)
	}
	if pipeline != nil {
		pipeline.Stop()
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Printf("[morketd] metrics shutdown: %v", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
