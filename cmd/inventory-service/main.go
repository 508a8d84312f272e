package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	invgrpc "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/grpc"
	invhttp "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/http"
	invkafka "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/kafka"
	invpg "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/httpx"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	kafkabus "github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging/kafka"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/metrics"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/outbox"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/shutdown"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

const serviceName = "inventory-service"

func main() {
	log := logging.New()
	if err := run(log); err != nil {
		log.Error(serviceName+" stopped", "err", err)
		os.Exit(1)
	}
	log.Info(serviceName + " shutdown complete")
}

func run(log *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return fmt.Errorf("pg connect: %w", err)
	}
	defer pool.Close()

	repo := invpg.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	outboxStore := outbox.NewPGStore(pool, cfg.OutboxMaxRetries)
	if err := outboxStore.Migrate(ctx); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	writer := kafkabus.NewPublisher(cfg.KafkaBrokers)
	defer writer.Close()
	// Replies and dead letters are sent from consumers, where a parked
	// message must not fail the delivery.
	publisher := outbox.NewFallbackPublisher(log, writer, outboxStore, outbox.ParkedAsSent())
	relay := outbox.NewRelay(log, outboxStore, outbox.NewDispatcher(log, writer), serviceName+"-relay")

	svc := application.NewService(log, repo, repo, transaction.NewPgxScope(pool), publisher)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, serviceName)
	consumerMetrics := metrics.NewConsumerMetrics(reg, serviceName)

	consumerConfig := func(queue string) messaging.Config {
		return messaging.Config{
			Queue:           queue,
			DeadLetterQueue: contracts.DeadLetterQueue(queue),
			Prefetch:        cfg.Prefetch,
			MaxAttempts:     cfg.MaxAttempts,
			InitialBackoff:  cfg.RetryBackoff,
		}
	}
	source := func(queue string) kafkabus.SourceConfig {
		return kafkabus.SourceConfig{Brokers: cfg.KafkaBrokers, Topic: queue, GroupID: serviceName}
	}

	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	validation := kafkabus.NewLoop(log, source(contracts.QueueStockValidation), publisher,
		idempotency.Middleware(idem, log, invkafka.ValidationRequestedHandler(svc)),
		consumerConfig(contracts.QueueStockValidation), messaging.WithObserver(consumerMetrics))
	// Decrements are deduplicated in the same transaction as the stock
	// change, so they skip the Redis check.
	decrement := kafkabus.NewLoop(log, source(contracts.QueueOrderFinished), publisher,
		invkafka.DecrementRequestedHandler(svc),
		consumerConfig(contracts.QueueOrderFinished), messaging.WithObserver(consumerMetrics))

	health := invgrpc.NewServer(log, map[string]invgrpc.Probe{
		contracts.QueueStockValidation: validation.Running,
		contracts.QueueOrderFinished:   decrement.Running,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, serverMetrics.Middleware)
	r.Get("/healthz", httpx.Healthz(map[string]func() error{
		"postgres":                     func() error { return pool.Ping(ctx) },
		"redis":                        func() error { return rdb.Ping(ctx).Err() },
		contracts.QueueStockValidation: validation.Check,
		contracts.QueueOrderFinished:   decrement.Check,
	}))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/", invhttp.NewHandler(log, svc).Routes())
	srv := httpx.NewServer(cfg.HTTPAddr, otelhttp.NewHandler(r, serviceName))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpx.Serve(gctx, log, srv, 10*time.Second) })
	g.Go(func() error { return health.Serve(gctx, cfg.GRPCAddr, 2*time.Second) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return validation.Run(gctx) })
	g.Go(func() error { return decrement.Run(gctx) })
	return g.Wait()
}
