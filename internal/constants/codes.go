package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	// Common error codes
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"

	// Shortener-specific codes
	CodeInvalidURL          = "INVALID_URL"
	CodeInvalidCode         = "INVALID_CODE"
	CodeInvalidExpiry       = "INVALID_EXPIRY"
	CodeCodeTaken           = "CODE_TAKEN"
	CodeAllocationExhausted = "ALLOCATION_EXHAUSTED"
	CodeLinkNotFound        = "LINK_NOT_FOUND"

	// Success codes
	CodeLinkCreated = "LINK_CREATED"
	CodeLinkFound   = "LINK_FOUND"
	CodeLinkDeleted = "LINK_DELETED"
	CodeLinksListed = "LINKS_LISTED"
	CodeStatsFound  = "STATS_FOUND"
)
