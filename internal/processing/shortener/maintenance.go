package shortener

import (
	"context"
	"time"

	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Sweeper removes expired records from the store and drops their cache
// entries. Sweeps are idempotent and safe to run concurrently with live
// traffic: the store delete is conditional on the expiry column, and a
// second pass over an already-swept set removes nothing.
type Sweeper struct {
	store    Store
	cache    Cache
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store Store, cache Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		cache:    cache,
		interval: interval,
		now:      time.Now,
	}
}

// Sweep deletes every record expired at the given instant and invalidates
// each removed code in the cache, so the lazy-expiry path never has to.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	codes, err := s.store.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		for _, code := range codes {
			if err := s.cache.Invalidate(ctx, code); err != nil {
				logger.Warn("sweep cache invalidate failed", zap.String("code", code), zap.Error(err))
			}
		}
	}

	return int64(len(codes)), nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			removed, err := s.Sweep(ctx, s.now())
			if err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("expiry sweep completed", zap.Int64("removed", removed))
			}
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		}
	}
}
