package channel

import (
	"context"
	"sync"

	"hostbridge/codec"
	"hostbridge/middleware"
	"hostbridge/value"
)

// MethodMux routes calls on one channel to per-method handlers. Methods
// without an entry fall through to ErrNotImplemented, which the dispatch
// layer turns into the empty reply.
//
// Typical wiring:
//
//	mux := channel.NewMethodMux()
//	mux.Handle("getBatteryLevel", batteryHandler)
//	ch.SetMethodCallHandler(mux.Dispatch)
type MethodMux struct {
	mu       sync.RWMutex
	handlers map[string]middleware.Handler
}

func NewMethodMux() *MethodMux {
	return &MethodMux{handlers: make(map[string]middleware.Handler)}
}

// Handle registers h for the method name, replacing any previous handler.
func (m *MethodMux) Handle(method string, h middleware.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// Dispatch is a middleware.Handler that routes by call.Method.
func (m *MethodMux) Dispatch(ctx context.Context, call codec.MethodCall) (value.Value, error) {
	m.mu.RLock()
	h := m.handlers[call.Method]
	m.mu.RUnlock()
	if h == nil {
		return nil, ErrNotImplemented
	}
	return h(ctx, call)
}
