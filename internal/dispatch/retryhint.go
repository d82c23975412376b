package dispatch

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// defaultRateLimitCooldown is the fallback wait when a 429 carries no
// parseable reset hint at all (spec §4.7.3).
const defaultRateLimitCooldown = 60 * time.Second

// shortResetThreshold is the cutoff below which a 429's reset hint is
// treated as a near-instant blip: Dispatch sleeps it out and selects again
// without putting the account into cooldown.
const shortResetThreshold = time.Second

// rateLimitBackoffTiers scales the cooldown with the attempt number within
// one Dispatch call, so a rate limit on a later attempt of a request backs
// off harder than one on an earlier attempt.
var rateLimitBackoffTiers = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// tieredBackoff picks the attempt-indexed tier, but never waits less than
// the backend's own reset hint.
func tieredBackoff(attempt int, hint time.Duration) time.Duration {
	tierIndex := attempt - 1
	if tierIndex < 0 {
		tierIndex = 0
	}
	if tierIndex >= len(rateLimitBackoffTiers) {
		tierIndex = len(rateLimitBackoffTiers) - 1
	}
	tier := rateLimitBackoffTiers[tierIndex]
	if hint > tier {
		return hint
	}
	return tier
}

type retryHintBody struct {
	ResetsInSeconds *float64 `json:"resets_in_seconds"`
	ResetsAt        *string  `json:"resets_at"`
}

// parseRetryHint extracts a cooldown duration from a 429 response: the
// Retry-After header first (seconds or HTTP-date form), then the body
// fields resets_in_seconds/resets_at, then the default cooldown.
func parseRetryHint(header http.Header, body io.Reader) time.Duration {
	if ra := header.Get("Retry-After"); ra != "" {
		if d, ok := parseRetryAfterHeader(ra); ok {
			return d
		}
	}

	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil || len(raw) == 0 {
		return defaultRateLimitCooldown
	}
	var hint retryHintBody
	if json.Unmarshal(raw, &hint) != nil {
		return defaultRateLimitCooldown
	}
	if hint.ResetsInSeconds != nil {
		return time.Duration(*hint.ResetsInSeconds * float64(time.Second))
	}
	if hint.ResetsAt != nil {
		if t, err := time.Parse(time.RFC3339, *hint.ResetsAt); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return defaultRateLimitCooldown
}

func parseRetryAfterHeader(v string) (time.Duration, bool) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}
