// Package twitter talks to the X API v2: posting with OAuth 1.0a user
// context, and search/lookup with an app bearer token.
package twitter

import (
	"errors"
	"fmt"
	"strings"
)

// APIError carries the HTTP status so callers can branch on rate limits and
// auth failures. Cloudflare marks a challenge page rather than a real API 403.
type APIError struct {
	StatusCode int
	Message    string
	Cloudflare bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is a 429 from the API
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// IsQuoteRestricted reports a 403 whose detail says quoting is not allowed
// for the source tweet. Only this flavor of 403 justifies the URL-embed
// fallback.
func IsQuoteRestricted(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 403 && !apiErr.Cloudflare && strings.Contains(apiErr.Message, "Quoting")
}

// IsCloudflareBlock detects the Cloudflare challenge page that some hosting
// IP ranges hit instead of a JSON error body.
func IsCloudflareBlock(statusCode int, body string) bool {
	if statusCode != 403 {
		return false
	}
	head := body
	if len(head) > 300 {
		head = head[:300]
	}
	return strings.Contains(strings.ToLower(head), "<html") || strings.Contains(head, "Just a moment")
}
