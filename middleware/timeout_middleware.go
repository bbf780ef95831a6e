package middleware

import (
	"context"
	"time"

	"hostbridge/codec"
	"hostbridge/value"
)

// Timeout bounds a handler's execution time. The bridge core itself has no
// timeout primitive — an unanswered call stays outstanding — so this is the
// place to layer one in on the host side. On expiry the caller receives the
// "timeout" platform error code; the handler goroutine keeps running to
// completion but its late result is discarded.
func Timeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result value.Value
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, call)
				done <- outcome{result, err}
			}()

			select {
			case out := <-done:
				return out.result, out.err
			case <-ctx.Done():
				return nil, &codec.PlatformError{
					Code:    "timeout",
					Message: "call timed out",
					Details: value.Null{},
				}
			}
		}
	}
}
