package shortener

import "time"

// Link is the canonical short-link record. The store owns the authoritative
// copy; cached copies are disposable and never hold the real click counter.
type Link struct {
	Code          string
	TargetURL     string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	ClickCount    int64
	LastClickedAt *time.Time
}

// ExpiredAt reports whether the link is logically expired at the given time.
func (l *Link) ExpiredAt(at time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.UTC().After(at.UTC())
}

type CreateInput struct {
	TargetURL   string
	CustomCode  string
	ExpiryHours *int64
}

// Stats is the aggregate view over all stored links.
type Stats struct {
	TotalLinks   int64 `json:"totalLinks"`
	ActiveLinks  int64 `json:"activeLinks"`
	ExpiredLinks int64 `json:"expiredLinks"`
	TotalClicks  int64 `json:"totalClicks"`
}

// Page is one page of links plus the total row count for pagination metadata.
type Page struct {
	Links []Link
	Total int64
	// Limit is the effective page size after clamping.
	Limit int64
}
