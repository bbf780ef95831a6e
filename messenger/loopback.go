package messenger

import (
	"sync"
	"sync/atomic"
)

// Loopback is an in-process BinaryMessenger endpoint. NewLoopback returns
// two of them, cross-wired: a Send on one side dispatches to the handlers
// registered on the other, and the reply hops back.
//
// Each endpoint owns a single dispatch goroutine — its side's privileged
// sequence. Incoming messages are handled on that sequence, and replies to
// this side's sends are delivered on it too, matching the scheduling model
// of a real UI/host boundary. The sequence must never be blocked: handlers
// doing slow work hand off and reply later.
type Loopback struct {
	registry *HandlerRegistry
	peer     *Loopback
	tasks    chan func()
	done     chan struct{}
	once     sync.Once

	// Sends currently being handled on this side, so teardown can fail them
	// back to their callers instead of leaving them outstanding forever.
	seq     atomic.Uint64
	pending sync.Map // uint64 → BinaryReply
}

// NewLoopback creates a connected pair of endpoints and starts their
// dispatch sequences.
func NewLoopback() (*Loopback, *Loopback) {
	a := newLoopbackSide()
	b := newLoopbackSide()
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

func newLoopbackSide() *Loopback {
	return &Loopback{
		registry: NewHandlerRegistry(),
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

func (l *Loopback) run() {
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.done:
			return
		}
	}
}

// enqueue schedules task on this side's sequence. If the side is torn down,
// closed runs instead (on the caller's goroutine). A full queue falls back
// to a waiting goroutine rather than blocking the caller; relative order
// between concurrent sends is not guaranteed anyway.
func (l *Loopback) enqueue(task func(), closed func()) {
	// Teardown wins over a free queue slot. A combined select would choose
	// between the two at random and could strand the task in a queue whose
	// run goroutine has already exited.
	select {
	case <-l.done:
		if closed != nil {
			closed()
		}
		return
	default:
	}
	select {
	case l.tasks <- task:
		return
	default:
	}
	go func() {
		select {
		case <-l.done:
			if closed != nil {
				closed()
			}
		case l.tasks <- task:
		}
	}()
}

// Send delivers message to the peer side's handler for the channel. onReply
// fires exactly once on this side's sequence — with the reply bytes, or with
// nil if the peer is torn down before replying.
func (l *Loopback) Send(channel string, message []byte, onReply BinaryReply) {
	if onReply == nil {
		onReply = func([]byte) {}
	}

	// Exactly-once guard: the handler side must not be able to complete a
	// call twice, and a late reply after teardown must be a no-op.
	var replied atomic.Bool
	deliver := func(reply []byte) {
		if replied.Swap(true) {
			return
		}
		l.enqueue(func() { onReply(reply) }, func() { onReply(nil) })
	}

	peer := l.peer
	id := peer.seq.Add(1)
	peer.pending.Store(id, BinaryReply(deliver))
	// Re-check after the store: a concurrent Close may have swept pending
	// before this entry landed, and then nothing else would complete it.
	select {
	case <-peer.done:
		peer.pending.Delete(id)
		deliver(nil)
		return
	default:
	}
	peer.enqueue(func() {
		peer.registry.Dispatch(channel, message, func(reply []byte) {
			peer.pending.Delete(id)
			deliver(reply)
		})
	}, func() {
		peer.pending.Delete(id)
		deliver(nil)
	})
}

// SetMessageHandler registers the handler invoked for messages the peer
// sends on the channel. Last registration wins; nil unregisters.
func (l *Loopback) SetMessageHandler(channel string, handler BinaryHandler) {
	l.registry.Set(channel, handler)
}

// Close tears down this side. Sends already being handled here, and any
// future sends against it, complete with a nil reply at their caller.
func (l *Loopback) Close() {
	l.once.Do(func() {
		close(l.done)
		l.pending.Range(func(key, val any) bool {
			l.pending.Delete(key)
			val.(BinaryReply)(nil)
			return true
		})
	})
}
