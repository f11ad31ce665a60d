package vision

import (
	"errors"
	"strings"
)

// Sentinel errors for vision provider failures.
var (
	// ErrRateLimited marks an explicit rate-limit rejection from the API.
	// The engine treats it as transient: back off, clear the rate window,
	// and retry the same batch indefinitely.
	ErrRateLimited = errors.New("vision provider rate limited")
	// ErrEmptyReply marks a call that succeeded but carried no text content.
	ErrEmptyReply = errors.New("vision provider returned empty reply")
	// ErrProviderUnavailable marks transport-level failures.
	ErrProviderUnavailable = errors.New("vision provider unavailable")
)

// Rate-limit indicators observed in provider error bodies.
var rateLimitIndicators = []string{
	"rate_limit_error",
	"rate limit",
	"too many requests",
}

// IsRateLimited reports whether err describes a rate-limit rejection, either
// as the sentinel or by indicator text in the error description.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range rateLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
