// Package messenger defines the byte-level transport boundary of a bridge.
//
// A BinaryMessenger is the only component that touches a real transport.
// Everything above it (channels, codecs) deals in named byte buffers and
// completion callbacks; how the bytes actually cross the process or runtime
// boundary is the messenger's private business.
package messenger

// BinaryReply delivers the outcome of one send or one incoming message.
// It is invoked exactly once. A nil slice means the channel became
// permanently unavailable before a reply arrived (peer torn down); a
// zero-length slice is a real reply meaning "not implemented".
type BinaryReply func(reply []byte)

// BinaryHandler processes one incoming message for a channel. It runs on
// the receiving side's dispatch sequence, so a handler doing blocking work
// must hand off to its own goroutine and call reply when done; reply is
// safe to call from any goroutine, exactly once.
type BinaryHandler func(message []byte, reply BinaryReply)

// BinaryMessenger moves raw bytes between the two sides of a bridge.
//
// Guarantees every implementation must uphold:
//   - the callback passed to Send receives exactly the bytes produced in
//     response to that specific send, however many calls are in flight;
//   - replies may complete out of order relative to sends;
//   - once a buffer is handed to Send it is transferred — the caller must
//     not mutate it afterwards.
type BinaryMessenger interface {
	// Send delivers message to the peer's handler for the named channel.
	// onReply may be nil when the caller does not care about the outcome.
	Send(channel string, message []byte, onReply BinaryReply)

	// SetMessageHandler registers the handler for a channel name; a nil
	// handler unregisters. The last registration wins — registering twice
	// silently replaces the first handler, it does not fail.
	SetMessageHandler(channel string, handler BinaryHandler)
}
