package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atalho/atalho-url/internal/config"
	"github.com/atalho/atalho-url/internal/events"
	"github.com/atalho/atalho-url/internal/infrastructure/db"
	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"github.com/atalho/atalho-url/internal/infrastructure/telemetry"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	mongoStorage "github.com/atalho/atalho-url/internal/storage/mongo"
	postgresStorage "github.com/atalho/atalho-url/internal/storage/postgres"
	redisStorage "github.com/atalho/atalho-url/internal/storage/redis"
	httpTransport "github.com/atalho/atalho-url/internal/transport/http"
	"go.uber.org/zap"
)

// linkStore is the durable store plus the health probe every driver provides.
type linkStore interface {
	shortener.Store
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env, cfg.App.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
	)

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		var err error
		shutdownTracer, err = telemetry.InitTracer(cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	store, closeStore := connectStore(cfg)
	defer closeStore()

	var cache shortener.Cache
	var cachePing httpTransport.Pinger
	var linkCache *redisStorage.LinkCache
	if cfg.Cache.Enabled {
		linkCache = redisStorage.NewLinkCache(
			cfg.Cache.Addr,
			cfg.Cache.Password,
			cfg.Cache.DB,
			cfg.Cache.TTL,
			cfg.Cache.OpTimeout,
		)
		defer func() { _ = linkCache.Close() }()
		cache = linkCache
		cachePing = linkCache
	}

	var sink shortener.ClickSink
	if cfg.Clicks.KafkaEnabled {
		publisher := events.NewKafkaClickPublisher(cfg.Clicks.KafkaBrokers, cfg.Clicks.KafkaTopic)
		defer func() { _ = publisher.Close() }()
		sink = publisher
		logger.Info("Click events publishing to Kafka",
			zap.Strings("brokers", cfg.Clicks.KafkaBrokers),
			zap.String("topic", cfg.Clicks.KafkaTopic),
		)
	} else {
		sink = shortener.NewStoreClickSink(store)
	}

	accountant := shortener.NewAccountant(sink, shortener.AccountantOptions{
		QueueSize:  cfg.Clicks.QueueSize,
		Workers:    cfg.Clicks.Workers,
		MaxRetries: cfg.Clicks.MaxRetries,
		RetryDelay: cfg.Clicks.RetryDelay,
	})

	allocator := shortener.NewAllocator(
		store,
		shortener.NewCryptoCodeGenerator(),
		cfg.Shortener.CodeLength,
		cfg.Shortener.MaxAttempts,
	)

	svc := shortener.NewService(store, cache, allocator, accountant, shortener.ServiceOptions{
		DefaultExpiryHours: cfg.Shortener.DefaultExpiryHours,
		StrictValidation:   cfg.Shortener.StrictValidation,
	})

	sweeper := shortener.NewSweeper(store, cache, cfg.Maintenance.SweepInterval)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	routerOpts := httpTransport.DefaultRouterOptions()
	if linkCache != nil {
		routerOpts.RateLimiter = redisStorage.NewFixedWindowLimiter(
			linkCache.Client(),
			cfg.Security.CreateRatePerMinute,
			time.Minute,
		)
	}
	router := httpTransport.NewRouterWithOptions(cfg, svc, store, cachePing, routerOpts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// The server stops first so in-flight redirects can still enqueue
		// their clicks; only then is the accountant drained.
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}

		stopSweeper()
		if err := accountant.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Click accountant shutdown incomplete", zap.Error(err))
		}

		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func connectStore(cfg *config.Config) (linkStore, func()) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		mongoConn, err := db.ConnectMongo(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		repo, err := mongoStorage.NewLinksRepository(mongoConn)
		if err != nil {
			logger.Fatal("Failed to initialize links repository", zap.Error(err))
		}
		return repo, func() { _ = mongoConn.Disconnect() }
	default:
		pgConn, err := db.ConnectPostgres(context.Background(), cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		repo, err := postgresStorage.NewLinksRepository(pgConn)
		if err != nil {
			logger.Fatal("Failed to initialize links repository", zap.Error(err))
		}
		return repo, pgConn.Close
	}
}
