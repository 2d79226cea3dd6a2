package shortener

import (
	"context"
	"errors"
)

const (
	minCodeLength = 1
	maxCodeLength = 16

	defaultCodeLength  = 8
	defaultMaxAttempts = 10
)

// Allocator reserves short codes against the store. It does not try to be
// the uniqueness authority: the store's unique constraint is, which makes
// the reservation race-free across processes.
type Allocator struct {
	store       Store
	gen         CodeGenerator
	codeLength  int
	maxAttempts int
}

func NewAllocator(store Store, gen CodeGenerator, codeLength, maxAttempts int) *Allocator {
	if codeLength < minCodeLength || codeLength > maxCodeLength {
		codeLength = defaultCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Allocator{
		store:       store,
		gen:         gen,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
	}
}

// Allocate fills link.Code and inserts the record. A custom code gets exactly
// one reservation attempt: it is user intent, so a conflict is ErrCodeTaken,
// never a retry with a different code. Generated codes are redrawn on
// collision up to the attempt budget, then ErrAllocationExhausted; the code
// length is never silently extended.
func (a *Allocator) Allocate(ctx context.Context, link *Link, customCode string) error {
	if customCode != "" {
		if !ValidCode(customCode) {
			return ErrInvalidCode
		}
		link.Code = customCode
		return a.store.Insert(ctx, link)
	}

	for range a.maxAttempts {
		code, err := a.gen.Generate(a.codeLength)
		if err != nil {
			return err
		}
		link.Code = code

		err = a.store.Insert(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return err
	}

	return ErrAllocationExhausted
}

// ValidCode reports whether s is usable as a short code: 1-16 characters,
// alphanumeric plus underscore and hyphen.
func ValidCode(s string) bool {
	if len(s) < minCodeLength || len(s) > maxCodeLength {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
