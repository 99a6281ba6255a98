package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var statusTooManyRequests = regexp.MustCompile(`\b429\b`)

var rateLimitPatterns = []string{
	"rate limit", "rate-limit", "rate_limit", "ratelimit",
	"too many requests", "quota exceeded", "quota_exceeded", "insufficient_quota",
	"requests per minute", "tokens per minute",
}

// IsRateLimit reports whether err carries a rate-limit signal from the provider.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if statusTooManyRequests.MatchString(msg) {
		return true
	}
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyError maps a raw provider error onto the generator's taxonomy.
// Context errors pass through untouched so callers can tell cancellation apart.
func classifyError(provider string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrGenerationFailed), errors.Is(err, ErrEmptyContent):
		return err
	case IsRateLimit(err):
		return fmt.Errorf("%w: %s: %w", ErrRateLimited, provider, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrGenerationFailed, provider, err)
}
