// Package reliability decides which provider failures deserve another
// attempt and how long to wait before making it.
package reliability

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TransientStatus reports whether an HTTP status from a speech or chat
// provider is worth retrying. Request timeouts and "too early" count along
// with throttling and gateway errors; every other 4xx is the caller's fault.
func TransientStatus(code int) bool {
	switch code {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// TransientStreamError reports whether an error frame received on a
// streaming synthesis socket names a condition that may clear on retry.
func TransientStreamError(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// RetryDelay returns the wait before retry number attempt (0-based),
// doubling from base and clamped to max. A max at or below base gives
// a fixed delay.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if max < base {
		max = base
	}
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// Snippet trims a provider error body to at most n bytes for logs and
// error messages, backing off so no UTF-8 sequence is split.
func Snippet(body string, n int) string {
	body = strings.TrimSpace(body)
	if len(body) <= n {
		return body
	}
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return body[:n]
}
