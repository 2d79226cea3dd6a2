package shortener

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweep_InvalidatesRemovedCodes(t *testing.T) {
	store := &mockStore{
		deleteExpiredFn: func(_ context.Context, _ time.Time) ([]string, error) {
			return []string{"a1", "b2", "c3"}, nil
		},
	}
	cache := newMemCache()
	s := NewSweeper(store, cache, time.Hour)

	removed, err := s.Sweep(context.Background(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("got %d removed, want 3", removed)
	}
	if len(cache.invalidated) != 3 {
		t.Errorf("expected 3 cache invalidations, got %v", cache.invalidated)
	}
}

func TestSweep_SecondPassRemovesNothing(t *testing.T) {
	calls := 0
	store := &mockStore{
		deleteExpiredFn: func(_ context.Context, _ time.Time) ([]string, error) {
			calls++
			if calls == 1 {
				return []string{"x1"}, nil
			}
			return nil, nil
		},
	}
	s := NewSweeper(store, newMemCache(), time.Hour)

	if removed, _ := s.Sweep(context.Background(), testNow); removed != 1 {
		t.Errorf("first sweep: got %d removed, want 1", removed)
	}
	if removed, _ := s.Sweep(context.Background(), testNow); removed != 0 {
		t.Errorf("second sweep: got %d removed, want 0", removed)
	}
}

func TestSweep_StoreErrorSurfaces(t *testing.T) {
	boom := errors.New("deadlock")
	store := &mockStore{
		deleteExpiredFn: func(_ context.Context, _ time.Time) ([]string, error) {
			return nil, boom
		},
	}
	s := NewSweeper(store, nil, time.Hour)

	if _, err := s.Sweep(context.Background(), testNow); !errors.Is(err, boom) {
		t.Fatalf("expected store error surfaced, got %v", err)
	}
}

func TestSweep_CacheFailureDoesNotAbort(t *testing.T) {
	store := &mockStore{
		deleteExpiredFn: func(_ context.Context, _ time.Time) ([]string, error) {
			return []string{"y1", "y2"}, nil
		},
	}
	s := NewSweeper(store, downCache{}, time.Hour)

	removed, err := s.Sweep(context.Background(), testNow)
	if err != nil {
		t.Fatalf("cache failure must not abort the sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("got %d removed, want 2", removed)
	}
}
