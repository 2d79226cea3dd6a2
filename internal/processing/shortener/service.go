package shortener

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type ServiceOptions struct {
	// DefaultExpiryHours is applied when a create request carries no expiry.
	// Zero means newly created links never expire by default.
	DefaultExpiryHours int64
	// StrictValidation additionally requires an http/https scheme and a
	// non-empty host on target URLs.
	StrictValidation bool
}

// Service orchestrates the store, cache and allocator under one consistency
// policy: the store is ground truth for every authoritative decision, the
// cache is an accelerator whose failures are absorbed, never surfaced.
type Service struct {
	store     Store
	cache     Cache
	allocator *Allocator
	clicks    ClickRecorder
	opts      ServiceOptions
	now       func() time.Time
}

func NewService(store Store, cache Cache, allocator *Allocator, clicks ClickRecorder, opts ServiceOptions) *Service {
	return &Service{
		store:     store,
		cache:     cache,
		allocator: allocator,
		clicks:    clicks,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Link, error) {
	normalized, err := s.validateTargetURL(in.TargetURL)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	expiresAt, err := s.expiry(now, in.ExpiryHours)
	if err != nil {
		return nil, err
	}

	link := &Link{
		TargetURL: normalized,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := s.allocator.Allocate(ctx, link, strings.TrimSpace(in.CustomCode)); err != nil {
		return nil, err
	}

	s.cachePut(ctx, link)
	return link, nil
}

// Resolve is the hot redirect path: cache first, store on miss, lazy expiry
// on both, click dispatched after a successful resolution. Cache failures of
// any kind degrade to a plain store read.
func (s *Service) Resolve(ctx context.Context, code string) (*Link, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	now := s.now().UTC()

	if link := s.cacheGet(ctx, code); link != nil {
		if link.ExpiredAt(now) {
			s.cacheInvalidate(ctx, code)
			return nil, ErrNotFound
		}
		s.recordClick(code)
		return link, nil
	}

	link, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.ExpiredAt(now) {
		// The sweeper removes the row later; only the stale cache entry is
		// cleaned up here.
		s.cacheInvalidate(ctx, code)
		return nil, ErrNotFound
	}

	s.cachePut(ctx, link)
	s.recordClick(code)
	return link, nil
}

// Info follows the same lookup path as Resolve but records no click and
// reports expired records as-is, so callers can tell "never existed" from
// "existed and expired".
func (s *Service) Info(ctx context.Context, code string) (*Link, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	if link := s.cacheGet(ctx, code); link != nil {
		return link, nil
	}

	link, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.ExpiredAt(s.now().UTC()) {
		s.cachePut(ctx, link)
	}
	return link, nil
}

// Delete removes the record and invalidates the cache entry regardless of
// whether the store held the code, keeping repeated deletes idempotent.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrNotFound
	}

	deleted, err := s.store.Delete(ctx, code)
	s.cacheInvalidate(ctx, code)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// List is a store pass-through; pages are never cached so they reflect
// durable state exactly.
func (s *Service) List(ctx context.Context, limit, offset int64) (Page, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	links, err := s.store.ListPage(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return Page{}, err
	}
	return Page{Links: links, Total: total, Limit: limit}, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) recordClick(code string) {
	if s.clicks == nil {
		return
	}
	s.clicks.Record(code)
}

func (s *Service) cacheGet(ctx context.Context, code string) *Link {
	if s.cache == nil {
		return nil
	}
	link, err := s.cache.Get(ctx, code)
	if err != nil {
		// Unavailable is indistinguishable from a miss by contract.
		logger.Debug("cache get failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	return link
}

func (s *Service) cachePut(ctx context.Context, link *Link) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, link); err != nil {
		logger.Warn("cache put failed", zap.String("code", link.Code), zap.Error(err))
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		logger.Warn("cache invalidate failed", zap.String("code", code), zap.Error(err))
	}
}

func (s *Service) expiry(now time.Time, hours *int64) (*time.Time, error) {
	if hours != nil {
		if *hours <= 0 {
			return nil, ErrInvalidExpiry
		}
		t := now.Add(time.Duration(*hours) * time.Hour)
		return &t, nil
	}
	if s.opts.DefaultExpiryHours > 0 {
		t := now.Add(time.Duration(s.opts.DefaultExpiryHours) * time.Hour)
		return &t, nil
	}
	return nil, nil
}

func (s *Service) validateTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if !u.IsAbs() {
		return "", ErrInvalidURL
	}

	if s.opts.StrictValidation {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", ErrInvalidURL
		}
		if strings.TrimSpace(u.Host) == "" {
			return "", ErrInvalidURL
		}
	}

	// Stored verbatim: Resolve must hand back exactly what the caller gave
	// us, so no normalization beyond trimming surrounding whitespace.
	return raw, nil
}
