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

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	orderhttp "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/sqlite"
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

const serviceName = "order-service"

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

	repo := orderpg.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	outboxStore := outbox.NewPGStore(pool, cfg.OutboxMaxRetries)
	if err := outboxStore.Migrate(ctx); err != nil {
		return err
	}

	audit, err := sqlite.Open(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	topics := []string{
		contracts.QueueStockValidation, contracts.DeadLetterQueue(contracts.QueueStockValidation),
		contracts.QueueOrderValidated, contracts.DeadLetterQueue(contracts.QueueOrderValidated),
		contracts.QueueOrderFinished, contracts.DeadLetterQueue(contracts.QueueOrderFinished),
	}
	if err := kafkabus.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicPartitions, topics...); err != nil {
		log.Warn("could not create topics, relying on auto-creation", "err", err)
	}
	writer := kafkabus.NewPublisher(cfg.KafkaBrokers)
	defer writer.Close()
	publisher := outbox.NewFallbackPublisher(log, writer, outboxStore)
	deadLetters := outbox.NewFallbackPublisher(log, writer, outboxStore, outbox.ParkedAsSent())
	relay := outbox.NewRelay(log, outboxStore, outbox.NewDispatcher(log, writer), serviceName+"-relay")

	svc := application.NewService(log, repo, transaction.NewPgxScope(pool), publisher, audit)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, serviceName)
	consumerMetrics := metrics.NewConsumerMetrics(reg, serviceName)

	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	validated := kafkabus.NewLoop(log,
		kafkabus.SourceConfig{Brokers: cfg.KafkaBrokers, Topic: contracts.QueueOrderValidated, GroupID: serviceName},
		deadLetters,
		idempotency.Middleware(idem, log, orderkafka.StockValidatedHandler(svc)),
		messaging.Config{
			Queue:           contracts.QueueOrderValidated,
			DeadLetterQueue: contracts.DeadLetterQueue(contracts.QueueOrderValidated),
			Prefetch:        cfg.Prefetch,
			MaxAttempts:     cfg.MaxAttempts,
			InitialBackoff:  cfg.RetryBackoff,
		},
		messaging.WithObserver(consumerMetrics),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, serverMetrics.Middleware)
	r.Get("/healthz", httpx.Healthz(map[string]func() error{
		"postgres":                    func() error { return pool.Ping(ctx) },
		"redis":                       func() error { return rdb.Ping(ctx).Err() },
		contracts.QueueOrderValidated: validated.Check,
	}))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/", orderhttp.NewHandler(log, svc).Routes())
	srv := httpx.NewServer(cfg.HTTPAddr, otelhttp.NewHandler(r, serviceName))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpx.Serve(gctx, log, srv, 10*time.Second) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return validated.Run(gctx) })
	return g.Wait()
}
