package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"hostbridge/codec"
	"hostbridge/value"
)

// RateLimit rejects calls beyond r per second (token bucket with the given
// burst). Rejected calls fail with the "rate-limited" platform error code so
// the remote caller can back off.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
			if !limiter.Allow() {
				return nil, &codec.PlatformError{
					Code:    "rate-limited",
					Message: "too many calls",
					Details: value.Null{},
				}
			}
			return next(ctx, call)
		}
	}
}
