package main

import (
	"context"
	"crypto"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credex/internal/cursor"
	exchangechallenge "credex/internal/exchange/challenge"
	exchangeevents "credex/internal/exchange/events"
	exchangemetrics "credex/internal/exchange/metrics"
	exchangeservice "credex/internal/exchange/service"
	exchangestore "credex/internal/exchange/store"
	"credex/internal/ledger"
	nonceservice "credex/internal/nonce/service"
	noncestore "credex/internal/nonce/store"
	offerservice "credex/internal/offer/service"
	offerstore "credex/internal/offer/store"
	"credex/internal/platform/config"
	"credex/internal/platform/database"
	"credex/internal/platform/health"
	"credex/internal/platform/kafka/producer"
	"credex/internal/platform/logger"
	platformredis "credex/internal/platform/redis"
	httptransport "credex/internal/transport/http"
	"credex/internal/verification"
	"credex/pkg/platform/tracer"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing credex",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	healthHandler := health.New(cfg.Environment)

	// Stores default to in-memory so the engine runs standalone; a database
	// URL switches every store to Postgres.
	var (
		exchanges exchangestore.Store = exchangestore.New()
		offers    offerstore.Store    = offerstore.New()
		db        *sql.DB
	)
	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(dbCfg)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		healthHandler.RegisterCheck("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		db = pool.DB()
		exchanges = exchangestore.NewPostgres(db)
		offers = offerstore.NewPostgres(db)
	}

	var guard exchangechallenge.Guard = exchangechallenge.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		redisClient, err := platformredis.New(platformredis.Config{Addr: cfg.RedisAddr})
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
		guard = exchangechallenge.NewRedisGuard(redisClient.Client)
	}

	var notifier exchangeevents.Notifier = exchangeevents.NoopNotifier{}
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err := producer.New(producer.Config{
			Brokers: cfg.KafkaBrokers,
			Retries: 5,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(ctx) {
				return context.DeadlineExceeded
			}
			return nil
		})
		notifier = exchangeevents.NewKafkaNotifier(kafkaProducer, cfg.EventTopic, log)
	}

	exchangeMetrics := exchangemetrics.New()
	exchangeSvc := exchangeservice.NewService(exchanges, log,
		exchangeservice.WithMetrics(exchangeMetrics),
		exchangeservice.WithTracer(tracer.NewOTel()),
		exchangeservice.WithNotifier(notifier),
		exchangeservice.WithChallengeGuard(guard),
		exchangeservice.WithChallengeTTL(cfg.ChallengeTTL),
	)
	offerSvc := offerservice.NewService(offers, log,
		offerservice.WithOfferTTL(cfg.OfferTTL),
	)
	finalizer := exchangeservice.NewFinalizer(exchangeSvc, offers, log)

	keys := verification.StaticKeys{}
	if cfg.IssuerPublicKey != "" {
		key, err := verification.ParseEd25519PublicKey(cfg.IssuerPublicKey)
		if err != nil {
			log.Error("issuer public key invalid", "error", err)
			os.Exit(1)
		}
		keys[cfg.IssuerKeyID] = crypto.PublicKey(key)
	}
	pipeline := verification.NewPipeline(keys, cfg.TrustedIssuerDID,
		verification.WithLogger(log),
	)

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	handlerOpts := []httptransport.HandlerOption{
		httptransport.WithMetrics(exchangeMetrics),
	}
	if cfg.LedgerRPCURL != "" {
		var nonces noncestore.Store = noncestore.New()
		var checkpoints cursor.Store = cursor.NewInMemoryStore()
		if db != nil {
			nonces = noncestore.NewPostgres(db)
			checkpoints = cursor.NewPostgresStore(db)
		}

		nonceSvc := nonceservice.NewService(nonces,
			nonceservice.WithLogger(log),
			nonceservice.WithTracer(tracer.NewOTel()),
		)
		rpcClient := ledger.NewRPCClient(cfg.LedgerRPCURL, nil)
		submitter := ledger.NewSubmitter(rpcClient, nonceSvc, cfg.LedgerTimeout,
			ledger.WithLogger(log),
		)
		handlerOpts = append(handlerOpts, httptransport.WithLedger(nonceSvc, submitter))

		runner := cursor.NewRunner(rpcClient, checkpoints,
			issuanceHandler(offerSvc, finalizer, log),
			cfg.CursorStreams,
			cursor.WithInterval(cfg.CursorInterval),
			cursor.WithLogger(log),
		)
		go func() {
			if err := runner.Run(runCtx); err != nil && err != context.Canceled {
				log.Error("cursor runner stopped", "error", err)
			}
		}()
	}

	handler := httptransport.NewHandler(exchangeSvc, offerSvc, finalizer, pipeline, log, handlerOpts...)
	router := httptransport.NewRouter(handler, healthHandler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
