package middleware

import (
	"context"
	"log"
	"time"

	"hostbridge/codec"
	"hostbridge/value"
)

// Logging logs each method call with its duration and outcome.
func Logging() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
			start := time.Now()
			result, err := next(ctx, call)
			log.Printf("method: %s, duration: %s", call.Method, time.Since(start))
			if err != nil {
				log.Printf("method: %s, error: %v", call.Method, err)
			}
			return result, err
		}
	}
}
