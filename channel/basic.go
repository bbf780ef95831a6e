package channel

import (
	"context"
	"fmt"

	"hostbridge/codec"
	"hostbridge/messenger"
	"hostbridge/value"
)

// MessageHandler processes one incoming basic message and returns the reply
// message (Null for "no reply content").
type MessageHandler func(ctx context.Context, message value.Value) (value.Value, error)

// BasicMessageChannel exchanges raw Values on a named channel, without the
// method-call envelope. It is the right tool when a channel carries one
// kind of message rather than a method namespace.
type BasicMessageChannel struct {
	name      string
	messenger messenger.BinaryMessenger
	codec     codec.MessageCodec
}

func NewBasicMessageChannel(m messenger.BinaryMessenger, name string, c codec.MessageCodec) *BasicMessageChannel {
	return &BasicMessageChannel{name: name, messenger: m, codec: c}
}

// Name returns the channel name.
func (c *BasicMessageChannel) Name() string { return c.name }

// SendAsync encodes and sends message; onReply (optional) receives the
// decoded reply. A zero-length reply — no handler registered on the other
// side, or a handler that produced no content — decodes as Null.
func (c *BasicMessageChannel) SendAsync(message value.Value, onReply func(reply value.Value, err error)) {
	data, err := c.codec.EncodeMessage(message)
	if err != nil {
		if onReply != nil {
			onReply(nil, err)
		}
		return
	}
	c.messenger.Send(c.name, data, func(reply []byte) {
		if onReply == nil {
			return
		}
		switch {
		case reply == nil:
			onReply(nil, ErrChannelGone)
		case len(reply) == 0:
			onReply(value.Null{}, nil)
		default:
			onReply(c.codec.DecodeMessage(reply))
		}
	})
}

// Send is the synchronous form of SendAsync, bounded by ctx.
func (c *BasicMessageChannel) Send(ctx context.Context, message value.Value) (value.Value, error) {
	type outcome struct {
		reply value.Value
		err   error
	}
	done := make(chan outcome, 1)
	c.SendAsync(message, func(reply value.Value, err error) {
		done <- outcome{reply, err}
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("send on %s: %w", c.name, ctx.Err())
	case out := <-done:
		return out.reply, out.err
	}
}

// SetMessageHandler registers the receiving-side handler; nil unregisters,
// last registration wins. Each message is handled on its own goroutine. A
// handler error is reported locally only — the basic-message wire format
// has no error envelope — and the peer receives an empty reply.
func (c *BasicMessageChannel) SetMessageHandler(handler MessageHandler) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}
	c.messenger.SetMessageHandler(c.name, func(data []byte, reply messenger.BinaryReply) {
		go func() {
			message, err := c.codec.DecodeMessage(data)
			if err != nil {
				reply([]byte{})
				return
			}
			result, err := handler(context.Background(), message)
			if err != nil {
				reply([]byte{})
				return
			}
			out, err := c.codec.EncodeMessage(result)
			if err != nil {
				reply([]byte{})
				return
			}
			reply(out)
		}()
	})
}
