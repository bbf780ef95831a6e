// Package middleware provides composable wrappers around method-call
// handlers: logging, rate limiting, panic recovery, timeouts, retries.
//
// A channel builds its chain once, when the handler is registered:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// so execution runs A.before → B.before → C.before → handler → C.after →
// B.after → A.after.
package middleware

import (
	"context"

	"hostbridge/codec"
	"hostbridge/value"
)

// Handler processes one incoming method call and returns its result.
// Returning codec.ErrNotImplemented yields the not-implemented reply;
// returning a *codec.PlatformError yields its error envelope; any other
// error is reported to the caller under a generic error code.
type Handler func(ctx context.Context, call codec.MethodCall) (value.Value, error)

// Middleware wraps a Handler with additional behavior.
type Middleware func(next Handler) Handler

// Chain composes middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
