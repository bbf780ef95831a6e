// Package transport implements a TCP BinaryMessenger for bridges whose two
// sides live in separate processes.
//
// An Endpoint multiplexes every channel over one connection. Each outgoing
// message gets a unique sequence number, and a background goroutine
// (recvLoop) continuously reads frames and routes replies to the right
// caller via a pending map:
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ peer
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── reply(seq=2) → pending[2] callback → goroutine-2's onReply
//
// Replies may arrive in any order; correlation is by seq, never by arrival
// position.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"hostbridge/messenger"
	"hostbridge/protocol"
)

// Endpoint is one side of a TCP bridge connection. It implements
// messenger.BinaryMessenger: Send carries messages to the peer's handlers,
// SetMessageHandler serves messages arriving from the peer. Both sides of a
// connection are fully symmetric.
type Endpoint struct {
	conn     net.Conn
	registry *messenger.HandlerRegistry
	seq      atomic.Uint32
	pending  sync.Map   // uint32 → messenger.BinaryReply, one entry per outstanding send
	sending  sync.Mutex // Write lock — frames from concurrent sends must not interleave
	closed   atomic.Bool
	once     sync.Once
	inflight *sync.WaitGroup  // Incoming dispatches, counted for graceful shutdown (may be shared by a Server)
	onClose  func(*Endpoint) // Set by Server to untrack the connection
}

var _ messenger.BinaryMessenger = (*Endpoint)(nil)

// Dial connects to a bridge host at addr. The returned endpoint is live:
// its receive loop is running and a heartbeat keeps the connection warm.
func Dial(addr string) (*Endpoint, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	ep := newEndpoint(conn, messenger.NewHandlerRegistry(), &sync.WaitGroup{}, nil)
	ep.start()
	go ep.heartbeatLoop(30 * time.Second)
	return ep, nil
}

func newEndpoint(conn net.Conn, registry *messenger.HandlerRegistry, inflight *sync.WaitGroup, onClose func(*Endpoint)) *Endpoint {
	return &Endpoint{
		conn:     conn,
		registry: registry,
		inflight: inflight,
		onClose:  onClose,
	}
}

// start launches the receive loop. Kept separate from construction so a
// server can register the endpoint before the first frame can possibly
// tear it down.
func (e *Endpoint) start() {
	go e.recvLoop()
}

// Send transmits message on the named channel. onReply fires exactly once:
// with the peer's reply bytes (possibly zero-length, meaning "not
// implemented"), or with nil once the connection is torn down.
func (e *Endpoint) Send(channel string, message []byte, onReply messenger.BinaryReply) {
	if onReply == nil {
		onReply = func([]byte) {}
	}
	var replied atomic.Bool
	deliver := func(reply []byte) {
		if !replied.Swap(true) {
			onReply(reply)
		}
	}

	if e.closed.Load() {
		deliver(nil)
		return
	}

	body, err := protocol.EncodeMessageBody(channel, message)
	if err != nil {
		deliver(nil)
		return
	}

	// Register the callback BEFORE writing, so a fast reply cannot race
	// past the pending map.
	seq := e.seq.Add(1)
	e.pending.Store(seq, messenger.BinaryReply(deliver))

	header := protocol.Header{
		Type:    protocol.FrameMessage,
		Seq:     seq,
		BodyLen: uint32(len(body)),
	}
	e.sending.Lock()
	err = protocol.Encode(e.conn, &header, body)
	e.sending.Unlock()
	if err != nil {
		e.pending.Delete(seq)
		deliver(nil)
	}
}

// SetMessageHandler registers the handler for messages the peer sends on
// the channel. Last registration wins; nil unregisters.
func (e *Endpoint) SetMessageHandler(channel string, handler messenger.BinaryHandler) {
	e.registry.Set(channel, handler)
}

// recvLoop is the single reader of the connection — TCP is a byte stream,
// so frame boundaries only survive sequential reads. Replies are routed to
// pending senders; messages are dispatched to handlers, each on its own
// goroutine so one slow handler cannot stall the loop.
func (e *Endpoint) recvLoop() {
	for {
		header, body, err := protocol.Decode(e.conn)
		if err != nil {
			e.teardown()
			return
		}
		switch header.Type {
		case protocol.FrameHeartbeat:
			// KeepAlive only, no payload
		case protocol.FrameReply:
			if cb, ok := e.pending.LoadAndDelete(header.Seq); ok {
				cb.(messenger.BinaryReply)(body)
			}
		case protocol.FrameMessage:
			e.inflight.Add(1)
			go e.handleMessage(header.Seq, body)
		}
	}
}

// handleMessage dispatches one incoming message frame and writes the reply
// frame carrying the same seq. The reply callback is once-guarded: a
// handler that completes twice corrupts nothing.
func (e *Endpoint) handleMessage(seq uint32, body []byte) {
	defer e.inflight.Done()

	var replied atomic.Bool
	done := make(chan struct{})
	sendReply := func(payload []byte) {
		if replied.Swap(true) {
			return
		}
		defer close(done)
		header := protocol.Header{
			Type:    protocol.FrameReply,
			Seq:     seq,
			BodyLen: uint32(len(payload)),
		}
		e.sending.Lock()
		defer e.sending.Unlock()
		protocol.Encode(e.conn, &header, payload)
	}

	channel, payload, err := protocol.DecodeMessageBody(body)
	if err != nil {
		// The frame was sound but the body framing was not. Answer with the
		// empty reply so the sender's call resolves instead of hanging.
		sendReply([]byte{})
		return
	}
	e.registry.Dispatch(channel, payload, func(reply []byte) {
		if reply == nil {
			reply = []byte{}
		}
		sendReply(reply)
	})
	// Handlers may complete on another goroutine. Block until the reply
	// frame is out so the in-flight count covers the whole dispatch, not
	// just its start.
	<-done
}

// heartbeatLoop sends periodic heartbeat frames so half-dead connections
// are discovered by the write path rather than by a stuck caller.
func (e *Endpoint) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if e.closed.Load() {
			return
		}
		header := protocol.Header{Type: protocol.FrameHeartbeat}
		e.sending.Lock()
		err := protocol.Encode(e.conn, &header, nil)
		e.sending.Unlock()
		if err != nil {
			return
		}
	}
}

// teardown marks the endpoint dead and fails every outstanding send with a
// nil reply, so no caller waits on a connection that can no longer answer.
func (e *Endpoint) teardown() {
	e.once.Do(func() {
		e.closed.Store(true)
		e.conn.Close()
		e.pending.Range(func(key, val any) bool {
			e.pending.Delete(key)
			val.(messenger.BinaryReply)(nil)
			return true
		})
		if e.onClose != nil {
			e.onClose(e)
		}
	})
}

// Close shuts the connection down. Outstanding sends complete with nil.
func (e *Endpoint) Close() error {
	e.teardown()
	return nil
}

// Addr returns the remote address of the underlying connection.
func (e *Endpoint) Addr() net.Addr { return e.conn.RemoteAddr() }
