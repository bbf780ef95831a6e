package messenger

import "sync"

// HandlerRegistry is the channel-name → handler table shared by messenger
// implementations. Register and unregister are atomic with respect to
// concurrent dispatch: a message in flight observes either the old or the
// new handler, never a torn state.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]BinaryHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]BinaryHandler)}
}

// Set installs handler for the channel, replacing any existing one
// (last registration wins). A nil handler removes the entry.
func (r *HandlerRegistry) Set(channel string, handler BinaryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.handlers, channel)
		return
	}
	r.handlers[channel] = handler
}

// Lookup returns the handler registered for the channel, or nil.
func (r *HandlerRegistry) Lookup(channel string) BinaryHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[channel]
}

// Dispatch routes one incoming message. A channel with no handler gets the
// zero-length reply immediately — the caller sees "not implemented", never
// a silently dropped message.
func (r *HandlerRegistry) Dispatch(channel string, message []byte, reply BinaryReply) {
	handler := r.Lookup(channel)
	if handler == nil {
		reply([]byte{})
		return
	}
	handler(message, reply)
}
