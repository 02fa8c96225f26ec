package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Headers carrying the provider's throttling hints, in lookup order.
const (
	HeaderRetryAfterSeconds = "X-Rate-Limit-Retry-After-Seconds"
	HeaderRetryAfter        = "Retry-After"
	HeaderRemaining         = "X-Rate-Limit-Remaining"
)

// Signal is the throttling hint extracted from a 429 response.
type Signal struct {
	// RetryAfter is how long the provider asked us to wait.
	RetryAfter time.Duration

	// HasRetryAfter is false when the response carried no usable hint; the
	// retry policy's default backoff applies then.
	HasRetryAfter bool
}

// ParseSignal extracts the retry-after hint from response headers.
// The provider-specific seconds header wins over the standard Retry-After,
// which may hold either seconds or an HTTP date relative to now.
// Unparseable values are treated as absent.
func ParseSignal(h http.Header, now time.Time) Signal {
	if v := strings.TrimSpace(h.Get(HeaderRetryAfterSeconds)); v != "" {
		if d, err := parseSeconds(v); err == nil {
			return Signal{RetryAfter: d, HasRetryAfter: true}
		}
	}

	v := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if v == "" {
		return Signal{}
	}
	if d, err := parseSeconds(v); err == nil {
		return Signal{RetryAfter: d, HasRetryAfter: true}
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return Signal{RetryAfter: d, HasRetryAfter: true}
	}
	return Signal{}
}

// ParseRemaining reads X-Rate-Limit-Remaining. ok is false when the header is absent.
func ParseRemaining(h http.Header) (remaining int, ok bool, err error) {
	v := strings.TrimSpace(h.Get(HeaderRemaining))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}
	return n, true, nil
}

func parseSeconds(v string) (time.Duration, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative retry-after %d", n)
	}
	return time.Duration(n) * time.Second, nil
}
