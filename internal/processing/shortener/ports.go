package shortener

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("link not found")
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidExpiry       = errors.New("invalid expiry")
	ErrCodeTaken           = errors.New("code taken")
	ErrAllocationExhausted = errors.New("code allocation exhausted")
)

// Store is the durable mapping code -> link. Insert is the atomic code
// reservation: the unique constraint on the code column is the sole arbiter
// of whether a code is free.
type Store interface {
	Insert(ctx context.Context, link *Link) error
	GetByCode(ctx context.Context, code string) (*Link, error)
	// IncrementClick bumps the counter and advances last_clicked_at in a
	// single atomic statement. Returns ErrNotFound for unknown codes.
	IncrementClick(ctx context.Context, code string, at time.Time) error
	Delete(ctx context.Context, code string) (bool, error)
	// DeleteExpired removes every record whose expiry is at or before asOf
	// and returns the removed codes so their cache entries can be dropped.
	DeleteExpired(ctx context.Context, asOf time.Time) ([]string, error)
	ListPage(ctx context.Context, limit, offset int64) ([]Link, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// Cache mirrors link records with a bounded lifetime. It is best-effort:
// callers treat every error as a miss and keep going against the store.
type Cache interface {
	Get(ctx context.Context, code string) (*Link, error)
	Put(ctx context.Context, link *Link) error
	Invalidate(ctx context.Context, code string) error
}

// ClickRecorder accepts a click for a resolved code. Record must never block
// or fail the redirect that triggered it.
type ClickRecorder interface {
	Record(code string)
}

// CodeGenerator draws random candidate codes of the given length.
type CodeGenerator interface {
	Generate(length int) (string, error)
}
