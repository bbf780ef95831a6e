package middleware

import (
	"context"
	"fmt"
	"log"

	"hostbridge/codec"
	"hostbridge/value"
)

// Recovery converts a handler panic into an "error" platform error, keeping
// the dispatch path alive and giving the remote caller something better
// than silence.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call codec.MethodCall) (result value.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("recovered panic in handler for %s: %v", call.Method, r)
					result = nil
					err = &codec.PlatformError{
						Code:    "error",
						Message: fmt.Sprintf("handler panic: %v", r),
						Details: value.Null{},
					}
				}
			}()
			return next(ctx, call)
		}
	}
}
