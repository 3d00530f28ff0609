package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"custodia/internal/auth"
	"custodia/internal/bootstrap"
	escrowHandler "custodia/internal/escrow/handler"
	custodiaHTTP "custodia/internal/http"
	ledgerHandler "custodia/internal/ledger/handler"
	"custodia/internal/limits"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	platformRedis "custodia/internal/platform/redis"
	registryHandler "custodia/internal/registry/handler"
	treasuryHandler "custodia/internal/treasury/handler"
	audit "custodia/pkg/platform/audit"
	auditMemory "custodia/pkg/platform/audit/store/memory"
	auditPostgres "custodia/pkg/platform/audit/store/postgres"
	auditWorker "custodia/pkg/platform/audit/worker"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat)
	m := metrics.New()

	// Audit store: postgres outbox when a DSN is configured, otherwise the
	// in-memory store for development.
	var (
		auditStore audit.Store
		outbox     *auditPostgres.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		outbox = auditPostgres.New(db)
		if err := outbox.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
		auditStore = outbox
		log.Info("audit events persisted to postgres outbox")
	} else {
		auditStore = auditMemory.New()
		log.Warn("no postgres DSN configured, audit events are in-memory only")
	}
	publisher := audit.NewPublisher(auditStore)

	// Daily limit buckets: shared via Redis when configured.
	var limitStore limits.Store = limits.NewMemoryStore()
	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		limitStore = limits.NewRedisStore(redisClient.Client)
		log.Info("daily limit buckets shared via redis")
	}

	system, err := bootstrap.Provision(ctx, cfg, nil, limitStore, publisher, m, log)
	if err != nil {
		return fmt.Errorf("provision custody core: %w", err)
	}
	log.Info("custody core provisioned", "treasury_account", system.TreasuryAccount)

	jwtService := auth.NewJWTService(cfg.JWTSigningKey, "custodia", "custodia-api")
	router := custodiaHTTP.NewRouter(
		log,
		jwtService,
		auth.NewHandler(jwtService, cfg.OperatorSecretHash, log),
		ledgerHandler.New(system.Ledger, publisher, log),
		registryHandler.New(system.Registry, log),
		treasuryHandler.New(system.Treasury, log),
		escrowHandler.New(system.Escrow, log),
	)
	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return server.Shutdown(context.Background())
	})

	// Outbox worker: requires both the postgres outbox and Kafka brokers.
	if outbox != nil && len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := auditWorker.NewKafkaClient(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()

		w := auditWorker.New(outbox, kafkaClient, cfg.KafkaTopic, log)
		group.Go(func() error {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit worker: %w", err)
			}
			return nil
		})
		log.Info("audit outbox worker started", "topic", cfg.KafkaTopic)
	}

	return group.Wait()
}
