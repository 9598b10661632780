// Command enrich-worker runs the Temporal worker that executes enrichment
// jobs: provider calls, credit settlement, status writes, and webhook
// delivery. It shares MORKET_* configuration with morketd and can run on
// any number of machines; Temporal partitions the work.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

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

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("enrich-worker: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("enrich-worker: open database: %v", err)
	}
	defer func() { _ = db.Close() }()

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
			log.Fatalf("enrich-worker: %v", err)
		}
		if err := telemetry.Migrate(ctx, conn); err != nil {
			log.Fatalf("enrich-worker: %v", err)
		}
		pipeline = telemetry.NewPipeline(telemetry.DefaultPipelineConfig(), telemetry.NewClickHouseSink(conn), logger)
		pipeline.Start(ctx)
		recorder = pipeline
		log.Printf("[enrich-worker] credit telemetry: %s", cfg.ClickHouseAddr)
	}

	store := enrichment.NewStore(db, logger)
	ledger := credits.NewLedger(db, logger, recorder)
	vlt, err := vault.NewVault(db, cfg.MasterKey, logger)
	if err != nil {
		log.Fatalf("enrich-worker: %v", err)
	}
	hooks := webhooks.NewService(db, logger)

	// Schema init is idempotent, so the worker does not care whether
	// morketd got there first.
	if err := store.Init(ctx); err != nil {
		log.Fatalf("enrich-worker: init enrichment schema: %v", err)
	}
	if err := ledger.Init(ctx); err != nil {
		log.Fatalf("enrich-worker: init credits schema: %v", err)
	}
	if err := vlt.Init(ctx); err != nil {
		log.Fatalf("enrich-worker: init vault schema: %v", err)
	}
	if err := hooks.Init(ctx); err != nil {
		log.Fatalf("enrich-worker: init webhooks schema: %v", err)
	}

	catalog := providers.DefaultCatalog()
	if cfg.ProviderCatalog != "" {
		catalog, err = providers.LoadCatalog(cfg.ProviderCatalog)
		if err != nil {
			log.Fatalf("enrich-worker: %v", err)
		}
	}
	defs, err := catalog.Definitions()
	if err != nil {
		log.Fatalf("enrich-worker: %v", err)
	}

	// Multi-worker deployments need the Redis pacer; the local pacer only
	// sees this process's calls.
	var pacer providers.Pacer
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		pacer = providers.NewRedisPacer(rdb, defs, logger)
		log.Printf("[enrich-worker] provider pacing: redis %s", cfg.RedisAddr)
	} else {
		pacer = providers.NewLocalPacer(defs, logger)
		log.Printf("[enrich-worker] provider pacing: local")
	}
	for i := range defs {
		defs[i].Adapter = providers.NewHTTPAdapter(defs[i], pacer, logger)
	}
	registry, err := providers.NewRegistry(defs)
	if err != nil {
		log.Fatalf("enrich-worker: %v", err)
	}

	metrics, err := observability.New(ctx, observability.DefaultConfig("enrich-worker"))
	if err != nil {
		log.Fatalf("enrich-worker: %v", err)
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

	deliverer := webhooks.NewDeliverer(hooks, cfg.WebhookTimeout, logger)
	activities := enrichment.NewActivities(store, registry, br, ledger, vlt, deliverer, metrics, logger)

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("enrich-worker: dial temporal: %v", err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TaskQueue, worker.Options{})
	enrichment.Register(w, activities)

	log.Printf("[enrich-worker] polling %s on %s", cfg.TaskQueue, cfg.TemporalAddress)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("enrich-worker: %v", err)
	}

	log.Printf("[enrich-worker] shutting down")
	if pipeline != nil {
		pipeline.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Printf("[enrich-worker] metrics shutdown: %v", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
