package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	// Common messages
	MsgInvalidRequestBody = "Invalid request body"
	MsgInternalError      = "An internal error occurred"
	MsgUnauthorized       = "Unauthorized"
	MsgRateLimited        = "Too many requests, slow down"

	// Shortener-specific messages
	MsgInvalidURL          = "Invalid URL (must be http or https)"
	MsgInvalidCode         = "Invalid short code (1-16 chars, letters, digits, _ or -)"
	MsgInvalidExpiry       = "Expiry must be a positive number of hours"
	MsgCodeTaken           = "Short code already in use"
	MsgAllocationExhausted = "Could not allocate a unique short code, try again"
	MsgLinkNotFound        = "Link not found"
)
