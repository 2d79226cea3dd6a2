package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atalho/atalho-url/internal/config"
	"github.com/atalho/atalho-url/internal/infrastructure/db"
	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	mongoStorage "github.com/atalho/atalho-url/internal/storage/mongo"
	postgresStorage "github.com/atalho/atalho-url/internal/storage/postgres"
	redisStorage "github.com/atalho/atalho-url/internal/storage/redis"
	"go.uber.org/zap"
)

const usage = `Usage: admin <command>

Commands:
  sweep       remove expired links and invalidate their cache entries
  stats       print aggregate link statistics
  ping-cache  check cache connectivity
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env, cfg.App.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "sweep":
		runSweep(ctx, cfg)
	case "stats":
		runStats(ctx, cfg)
	case "ping-cache":
		runPingCache(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runSweep(ctx context.Context, cfg *config.Config) {
	store, closeStore := connectStore(cfg)
	defer closeStore()

	var cache shortener.Cache
	if cfg.Cache.Enabled {
		linkCache := newCache(cfg)
		defer func() { _ = linkCache.Close() }()
		cache = linkCache
	}

	sweeper := shortener.NewSweeper(store, cache, 0)
	removed, err := sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	fmt.Printf("removed %d expired links\n", removed)
}

func runStats(ctx context.Context, cfg *config.Config) {
	store, closeStore := connectStore(cfg)
	defer closeStore()

	stats, err := store.Stats(ctx)
	if err != nil {
		logger.Fatal("failed to fetch stats", zap.Error(err))
	}

	fmt.Printf("total links:   %d\n", stats.TotalLinks)
	fmt.Printf("active links:  %d\n", stats.ActiveLinks)
	fmt.Printf("expired links: %d\n", stats.ExpiredLinks)
	fmt.Printf("total clicks:  %d\n", stats.TotalClicks)
}

func runPingCache(ctx context.Context, cfg *config.Config) {
	if !cfg.Cache.Enabled {
		fmt.Println("cache is disabled")
		return
	}

	linkCache := newCache(cfg)
	defer func() { _ = linkCache.Close() }()

	start := time.Now()
	if err := linkCache.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cache unreachable: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("cache ok (%s)\n", time.Since(start).Round(time.Millisecond))
}

func newCache(cfg *config.Config) *redisStorage.LinkCache {
	return redisStorage.NewLinkCache(
		cfg.Cache.Addr,
		cfg.Cache.Password,
		cfg.Cache.DB,
		cfg.Cache.TTL,
		cfg.Cache.OpTimeout,
	)
}

func connectStore(cfg *config.Config) (shortener.Store, func()) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		mongoConn, err := db.ConnectMongo(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		repo, err := mongoStorage.NewLinksRepository(mongoConn)
		if err != nil {
			logger.Fatal("failed to initialize links repository", zap.Error(err))
		}
		return repo, func() { _ = mongoConn.Disconnect() }
	default:
		pgConn, err := db.ConnectPostgres(context.Background(), cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		repo, err := postgresStorage.NewLinksRepository(pgConn)
		if err != nil {
			logger.Fatal("failed to initialize links repository", zap.Error(err))
		}
		return repo, pgConn.Close
	}
}
