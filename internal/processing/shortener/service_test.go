package shortener

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Hand-written mocks ---

type mockStore struct {
	insertFn        func(ctx context.Context, link *Link) error
	getByCodeFn     func(ctx context.Context, code string) (*Link, error)
	incrementFn     func(ctx context.Context, code string, at time.Time) error
	deleteFn        func(ctx context.Context, code string) (bool, error)
	deleteExpiredFn func(ctx context.Context, asOf time.Time) ([]string, error)
	listPageFn      func(ctx context.Context, limit, offset int64) ([]Link, error)
	countFn         func(ctx context.Context) (int64, error)
	statsFn         func(ctx context.Context) (Stats, error)
}

func (m *mockStore) Insert(ctx context.Context, link *Link) error {
	return m.insertFn(ctx, link)
}
func (m *mockStore) GetByCode(ctx context.Context, code string) (*Link, error) {
	return m.getByCodeFn(ctx, code)
}
func (m *mockStore) IncrementClick(ctx context.Context, code string, at time.Time) error {
	return m.incrementFn(ctx, code, at)
}
func (m *mockStore) Delete(ctx context.Context, code string) (bool, error) {
	return m.deleteFn(ctx, code)
}
func (m *mockStore) DeleteExpired(ctx context.Context, asOf time.Time) ([]string, error) {
	return m.deleteExpiredFn(ctx, asOf)
}
func (m *mockStore) ListPage(ctx context.Context, limit, offset int64) ([]Link, error) {
	return m.listPageFn(ctx, limit, offset)
}
func (m *mockStore) Count(ctx context.Context) (int64, error) {
	return m.countFn(ctx)
}
func (m *mockStore) Stats(ctx context.Context) (Stats, error) {
	return m.statsFn(ctx)
}

// memCache is an in-memory Cache used to observe puts and invalidations.
type memCache struct {
	entries     map[string]*Link
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*Link{}}
}

func (c *memCache) Get(_ context.Context, code string) (*Link, error) {
	return c.entries[code], nil
}
func (c *memCache) Put(_ context.Context, link *Link) error {
	c.entries[link.Code] = link
	return nil
}
func (c *memCache) Invalidate(_ context.Context, code string) error {
	delete(c.entries, code)
	c.invalidated = append(c.invalidated, code)
	return nil
}

// downCache fails every operation, standing in for an unreachable Redis.
type downCache struct{}

func (downCache) Get(context.Context, string) (*Link, error) {
	return nil, errors.New("connection refused")
}
func (downCache) Put(context.Context, *Link) error {
	return errors.New("connection refused")
}
func (downCache) Invalidate(context.Context, string) error {
	return errors.New("connection refused")
}

type mockRecorder struct {
	codes []string
}

func (m *mockRecorder) Record(code string) {
	m.codes = append(m.codes, code)
}

type mockGenerator struct {
	codes []string
	idx   int
}

func (m *mockGenerator) Generate(int) (string, error) {
	if m.idx >= len(m.codes) {
		return "", errors.New("no more codes")
	}
	c := m.codes[m.idx]
	m.idx++
	return c, nil
}

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore, cache Cache, clicks ClickRecorder, gen *mockGenerator, opts ServiceOptions) *Service {
	if gen == nil {
		gen = &mockGenerator{codes: []string{"gen00001"}}
	}
	allocator := NewAllocator(store, gen, 8, 10)
	svc := NewService(store, cache, allocator, clicks, opts)
	svc.now = func() time.Time { return testNow }
	return svc
}

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	var inserted *Link
	store := &mockStore{
		insertFn: func(_ context.Context, link *Link) error {
			inserted = link
			return nil
		},
	}
	cache := newMemCache()

	svc := newTestService(store, cache, nil, &mockGenerator{codes: []string{"abc12345"}}, ServiceOptions{})

	link, err := svc.Create(context.Background(), CreateInput{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if link.Code != "abc12345" {
		t.Errorf("got code %q, want %q", link.Code, "abc12345")
	}
	if inserted == nil {
		t.Fatal("expected store insert")
	}
	if link.ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", link.ExpiresAt)
	}
	if cache.entries["abc12345"] == nil {
		t.Error("expected created link to be cached")
	}
}

func TestCreate_InvalidURL(t *testing.T) {
	svc := newTestService(&mockStore{}, nil, nil, nil, ServiceOptions{StrictValidation: true})

	for _, raw := range []string{"", "not-a-url", "ftp://example.com", "https://"} {
		if _, err := svc.Create(context.Background(), CreateInput{TargetURL: raw}); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Create(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestCreate_CustomCodeTaken(t *testing.T) {
	store := &mockStore{
		insertFn: func(_ context.Context, _ *Link) error { return ErrCodeTaken },
	}
	svc := newTestService(store, nil, nil, nil, ServiceOptions{})

	_, err := svc.Create(context.Background(), CreateInput{
		TargetURL:  "https://example.com",
		CustomCode: "mine",
	})
	if !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
}

func TestCreate_CustomCodeInvalid(t *testing.T) {
	svc := newTestService(&mockStore{}, nil, nil, nil, ServiceOptions{})

	_, err := svc.Create(context.Background(), CreateInput{
		TargetURL:  "https://example.com",
		CustomCode: "has space",
	})
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestCreate_ExplicitExpiry(t *testing.T) {
	store := &mockStore{
		insertFn: func(_ context.Context, _ *Link) error { return nil },
	}
	svc := newTestService(store, nil, nil, nil, ServiceOptions{})

	hours := int64(24)
	link, err := svc.Create(context.Background(), CreateInput{
		TargetURL:   "https://example.com",
		ExpiryHours: &hours,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := testNow.Add(24 * time.Hour)
	if link.ExpiresAt == nil || !link.ExpiresAt.Equal(want) {
		t.Errorf("got expiry %v, want %v", link.ExpiresAt, want)
	}
}

func TestCreate_NonPositiveExpiry(t *testing.T) {
	svc := newTestService(&mockStore{}, nil, nil, nil, ServiceOptions{})

	zero := int64(0)
	_, err := svc.Create(context.Background(), CreateInput{
		TargetURL:   "https://example.com",
		ExpiryHours: &zero,
	})
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
}

func TestCreate_DefaultExpiryApplied(t *testing.T) {
	store := &mockStore{
		insertFn: func(_ context.Context, _ *Link) error { return nil },
	}
	svc := newTestService(store, nil, nil, nil, ServiceOptions{DefaultExpiryHours: 48})

	link, err := svc.Create(context.Background(), CreateInput{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	want := testNow.Add(48 * time.Hour)
	if link.ExpiresAt == nil || !link.ExpiresAt.Equal(want) {
		t.Errorf("got expiry %v, want %v", link.ExpiresAt, want)
	}
}

// --- Resolve ---

func TestResolve_CacheHitRecordsClick(t *testing.T) {
	cache := newMemCache()
	cache.entries["hot01234"] = &Link{Code: "hot01234", TargetURL: "https://example.com"}

	storeCalled := false
	store := &mockStore{
		getByCodeFn: func(_ context.Context, _ string) (*Link, error) {
			storeCalled = true
			return nil, ErrNotFound
		},
	}
	rec := &mockRecorder{}
	svc := newTestService(store, cache, rec, nil, ServiceOptions{})

	link, err := svc.Resolve(context.Background(), "hot01234")
	if err != nil {
		t.Fatal(err)
	}
	if link.TargetURL != "https://example.com" {
		t.Errorf("got URL %q", link.TargetURL)
	}
	if storeCalled {
		t.Error("cache hit must not touch the store")
	}
	if len(rec.codes) != 1 || rec.codes[0] != "hot01234" {
		t.Errorf("expected one recorded click, got %v", rec.codes)
	}
}

func TestResolve_MissPopulatesCache(t *testing.T) {
	cache := newMemCache()
	store := &mockStore{
		getByCodeFn: func(_ context.Context, code string) (*Link, error) {
			return &Link{Code: code, TargetURL: "https://example.com"}, nil
		},
	}
	svc := newTestService(store, cache, &mockRecorder{}, nil, ServiceOptions{})

	if _, err := svc.Resolve(context.Background(), "cold1234"); err != nil {
		t.Fatal(err)
	}
	if cache.entries["cold1234"] == nil {
		t.Error("expected miss to populate the cache")
	}
}

func TestResolve_ExpiredCacheEntry(t *testing.T) {
	expired := testNow.Add(-time.Minute)
	cache := newMemCache()
	cache.entries["old00001"] = &Link{Code: "old00001", TargetURL: "https://example.com", ExpiresAt: &expired}

	rec := &mockRecorder{}
	svc := newTestService(&mockStore{}, cache, rec, nil, ServiceOptions{})

	_, err := svc.Resolve(context.Background(), "old00001")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired link, got %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "old00001" {
		t.Errorf("expected expired entry to be invalidated, got %v", cache.invalidated)
	}
	if len(rec.codes) != 0 {
		t.Errorf("expired resolution must not record a click, got %v", rec.codes)
	}
}

func TestResolve_ExpiredStoreRecord(t *testing.T) {
	expired := testNow.Add(-time.Hour)
	cache := newMemCache()
	store := &mockStore{
		getByCodeFn: func(_ context.Context, code string) (*Link, error) {
			return &Link{Code: code, TargetURL: "https://example.com", ExpiresAt: &expired}, nil
		},
	}
	svc := newTestService(store, cache, &mockRecorder{}, nil, ServiceOptions{})

	_, err := svc.Resolve(context.Background(), "gone0001")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if cache.entries["gone0001"] != nil {
		t.Error("expired record must not be cached")
	}
}

func TestResolve_CacheDownDegradesToStore(t *testing.T) {
	store := &mockStore{
		getByCodeFn: func(_ context.Context, code string) (*Link, error) {
			return &Link{Code: code, TargetURL: "https://example.com"}, nil
		},
	}
	rec := &mockRecorder{}
	svc := newTestService(store, downCache{}, rec, nil, ServiceOptions{})

	link, err := svc.Resolve(context.Background(), "anycode1")
	if err != nil {
		t.Fatalf("cache failure must not surface: %v", err)
	}
	if link.TargetURL != "https://example.com" {
		t.Errorf("got URL %q", link.TargetURL)
	}
	if len(rec.codes) != 1 {
		t.Errorf("expected click recorded despite cache outage, got %v", rec.codes)
	}
}

func TestResolve_EmptyCode(t *testing.T) {
	svc := newTestService(&mockStore{}, nil, nil, nil, ServiceOptions{})

	if _, err := svc.Resolve(context.Background(), "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- Info ---

func TestInfo_ReportsExpiredRecord(t *testing.T) {
	expired := testNow.Add(-time.Hour)
	cache := newMemCache()
	store := &mockStore{
		getByCodeFn: func(_ context.Context, code string) (*Link, error) {
			return &Link{Code: code, TargetURL: "https://example.com", ExpiresAt: &expired}, nil
		},
	}
	rec := &mockRecorder{}
	svc := newTestService(store, cache, rec, nil, ServiceOptions{})

	link, err := svc.Info(context.Background(), "past0001")
	if err != nil {
		t.Fatal(err)
	}
	if link.ExpiresAt == nil {
		t.Error("expected expiry to be reported")
	}
	if cache.entries["past0001"] != nil {
		t.Error("expired record must not be cached")
	}
	if len(rec.codes) != 0 {
		t.Errorf("info must not record clicks, got %v", rec.codes)
	}
}

// --- Delete ---

func TestDelete_InvalidatesCache(t *testing.T) {
	cache := newMemCache()
	cache.entries["dead0001"] = &Link{Code: "dead0001"}
	store := &mockStore{
		deleteFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
	}
	svc := newTestService(store, cache, nil, nil, ServiceOptions{})

	if err := svc.Delete(context.Background(), "dead0001"); err != nil {
		t.Fatal(err)
	}
	if cache.entries["dead0001"] != nil {
		t.Error("expected cache entry removed")
	}
}

func TestDelete_MissingCode(t *testing.T) {
	cache := newMemCache()
	store := &mockStore{
		deleteFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
	svc := newTestService(store, cache, nil, nil, ServiceOptions{})

	err := svc.Delete(context.Background(), "nothere1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The cache entry is still removed so a repeat delete stays clean.
	if len(cache.invalidated) != 1 {
		t.Errorf("expected cache invalidation even on miss, got %v", cache.invalidated)
	}
}

// --- List ---

func TestList_ClampsLimit(t *testing.T) {
	var gotLimit int64
	store := &mockStore{
		listPageFn: func(_ context.Context, limit, _ int64) ([]Link, error) {
			gotLimit = limit
			return nil, nil
		},
		countFn: func(_ context.Context) (int64, error) { return 0, nil },
	}
	svc := newTestService(store, nil, nil, nil, ServiceOptions{})

	if _, err := svc.List(context.Background(), 5000, 0); err != nil {
		t.Fatal(err)
	}
	if gotLimit != maxListLimit {
		t.Errorf("got limit %d, want %d", gotLimit, maxListLimit)
	}

	if _, err := svc.List(context.Background(), 0, -3); err != nil {
		t.Fatal(err)
	}
	if gotLimit != defaultListLimit {
		t.Errorf("got limit %d, want %d", gotLimit, defaultListLimit)
	}
}

func TestList_ReturnsTotal(t *testing.T) {
	store := &mockStore{
		listPageFn: func(_ context.Context, _, _ int64) ([]Link, error) {
			return []Link{{Code: "a"}, {Code: "b"}}, nil
		},
		countFn: func(_ context.Context) (int64, error) { return 42, nil },
	}
	svc := newTestService(store, nil, nil, nil, ServiceOptions{})

	page, err := svc.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 42 {
		t.Errorf("got total %d, want 42", page.Total)
	}
	if len(page.Links) != 2 {
		t.Errorf("got %d links, want 2", len(page.Links))
	}
}

func TestCreate_TargetURLStoredVerbatim(t *testing.T) {
	const target = "https://example.com/page?q=1#section"

	backing := map[string]*Link{}
	store := &mockStore{
		insertFn: func(_ context.Context, link *Link) error {
			cp := *link
			backing[link.Code] = &cp
			return nil
		},
		getByCodeFn: func(_ context.Context, code string) (*Link, error) {
			link, ok := backing[code]
			if !ok {
				return nil, ErrNotFound
			}
			return link, nil
		},
	}
	svc := newTestService(store, nil, &mockRecorder{}, nil, ServiceOptions{StrictValidation: true})

	created, err := svc.Create(context.Background(), CreateInput{TargetURL: target})
	if err != nil {
		t.Fatal(err)
	}
	if created.TargetURL != target {
		t.Errorf("created target %q, want %q", created.TargetURL, target)
	}

	resolved, err := svc.Resolve(context.Background(), created.Code)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.TargetURL != target {
		t.Errorf("resolved target %q, want %q", resolved.TargetURL, target)
	}
}

// --- validateTargetURL ---

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		strict  bool
		want    string
		wantErr bool
	}{
		{"valid https", "https://example.com/path", true, "https://example.com/path", false},
		{"valid http", "http://example.com", true, "http://example.com", false},
		{"fragment preserved", "https://example.com/page#section", true, "https://example.com/page#section", false},
		{"whitespace trimmed", "  https://example.com  ", true, "https://example.com", false},
		{"empty string", "", true, "", true},
		{"no scheme", "example.com", true, "", true},
		{"ftp rejected in strict mode", "ftp://example.com", true, "", true},
		{"ftp allowed in lax mode", "ftp://example.com", false, "ftp://example.com", false},
		{"missing host strict", "https://", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockStore{}, nil, nil, nil, ServiceOptions{StrictValidation: tt.strict})
			got, err := svc.validateTargetURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
