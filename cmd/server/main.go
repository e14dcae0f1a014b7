package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"clicr/internal/audit"
	"clicr/internal/jwttoken"
	"clicr/internal/ledger/counter"
	"clicr/internal/ledger/hydrate"
	"clicr/internal/ledger/store"
	"clicr/internal/platform/config"
	"clicr/internal/platform/httpserver"
	"clicr/internal/platform/logger"
	"clicr/internal/platform/metrics"
	platformredis "clicr/internal/platform/redis"
	"clicr/internal/sync"
	"clicr/internal/sync/handler"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Authoritative store. Without DATABASE_URL the in-memory store backs a
	// development instance.
	var ledger store.Ledger
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Error("schema", "error", err)
			os.Exit(1)
		}
		ledger = store.NewPostgres(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		ledger = store.NewMemory()
	}

	m := metrics.New()

	// Audit stream: durable outbox drained into Kafka when both are
	// configured, otherwise an in-process sink.
	var emitter audit.Emitter = audit.NewMemorySink()
	var outboxWorker *audit.Worker
	var kafkaPub *audit.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka publisher", "error", err)
			os.Exit(1)
		}
		kafkaPub = pub
		emitter = pub
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				log.Error("outbox db", "error", err)
				os.Exit(1)
			}
			defer db.Close()
			if _, err := db.ExecContext(ctx, audit.OutboxSchema); err != nil {
				log.Error("outbox schema", "error", err)
				os.Exit(1)
			}
			emitter = audit.NewOutboxSink(db)
			outboxWorker = audit.NewWorker(db, pub, cfg.OutboxInterval, log)
		}
	}

	hydrator := hydrate.New(ledger, log)
	processor := counter.New(ledger, log,
		counter.WithEmitter(emitter),
		counter.WithMetrics(m),
	)

	opts := []sync.Option{sync.WithEmitter(emitter), sync.WithMetrics(m)}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, dataset cache disabled", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, sync.WithCache(sync.NewRedisCache(redisClient.Client, cfg.Redis.DatasetTTL)))
	}
	service := sync.New(ledger, hydrator, processor, log, opts...)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "clicr")
	router := handler.NewRouter(handler.New(service, log), tokens, log)
	srv := httpserver.New(cfg.Addr, router)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if outboxWorker != nil {
		go outboxWorker.Run(workerCtx)
	}

	log.Info("starting clicr", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	stopWorker()
	if kafkaPub != nil {
		if err := kafkaPub.Close(shutdownCtx); err != nil {
			log.Warn("audit stream close failed", "error", err)
		}
	}
}
