package middleware

import (
	"context"
	"errors"
	"log"
	"time"

	"hostbridge/codec"
	"hostbridge/value"
)

// Retry re-runs the handler with exponential backoff when it fails with one
// of the retryable platform error codes (defaults to "timeout" and
// "unavailable" when none are given). Only platform errors are retried;
// anything else returns immediately.
func Retry(maxRetries int, baseDelay time.Duration, retryableCodes ...string) Middleware {
	if len(retryableCodes) == 0 {
		retryableCodes = []string{"timeout", "unavailable"}
	}
	retryable := make(map[string]bool, len(retryableCodes))
	for _, code := range retryableCodes {
		retryable[code] = true
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
			result, err := next(ctx, call)
			for i := 0; i < maxRetries; i++ {
				if err == nil {
					return result, nil
				}
				var pe *codec.PlatformError
				if !errors.As(err, &pe) || !retryable[pe.Code] {
					return result, err
				}
				log.Printf("retry attempt %d for %s after error: %v", i+1, call.Method, err)
				time.Sleep(baseDelay * time.Duration(1<<i)) // Exponential backoff
				result, err = next(ctx, call)
			}
			return result, err
		}
	}
}
