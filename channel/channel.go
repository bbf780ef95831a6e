// Package channel implements named method channels between the two sides of
// a bridge: the caller-facing invoke surface, the host-facing handler
// surface, and the dispatch glue between envelopes and the binary
// messenger.
package channel

import (
	"context"
	"errors"
	"fmt"

	"hostbridge/codec"
	"hostbridge/messenger"
	"hostbridge/middleware"
	"hostbridge/value"
)

// ErrChannelGone reports that the transport signalled the channel became
// permanently unavailable (peer torn down) before a reply arrived. It is
// distinct from both a platform error and codec.ErrNotImplemented.
var ErrChannelGone = errors.New("channel connection gone")

// PlatformError is re-exported here because callers of Invoke usually only
// import this package.
type PlatformError = codec.PlatformError

// ErrNotImplemented is the condition a caller observes when the remote side
// has no implementation for the invoked method.
var ErrNotImplemented = codec.ErrNotImplemented

// Fixed error codes the dispatch path itself produces. Everything else in
// an error envelope comes from handlers and is opaque to the core.
const (
	// CodeDecodeFailure answers a request whose envelope could not be
	// decoded, so the remote caller can tell "your call reached us but was
	// malformed" from "feature unimplemented".
	CodeDecodeFailure = "decode"
	// CodeInternal answers handler panics and errors that carry no platform
	// error of their own.
	CodeInternal = "error"
)

// Call is one outstanding method invocation. Done receives the Call itself
// when it completes; exactly one of Value/Err is meaningful afterwards.
type Call struct {
	Method    string
	Arguments value.Value
	Value     value.Value // Result on success
	Err       error       // *PlatformError, ErrNotImplemented, ErrChannelGone, or *codec.CodecError
	Done      chan *Call
}

func (call *Call) done() {
	call.Done <- call
}

// MethodChannel is a named, codec-equipped binding to the messenger. One
// side invokes methods on it, the other registers a handler. Channel names
// are opaque; keeping them unique across the wired-up system is the
// embedder's job — the protocol does not detect collisions.
type MethodChannel struct {
	name        string
	messenger   messenger.BinaryMessenger
	codec       codec.MethodCodec
	middlewares []middleware.Middleware
}

// NewMethodChannel creates a method channel using the standard binary
// method codec.
func NewMethodChannel(m messenger.BinaryMessenger, name string) *MethodChannel {
	return NewMethodChannelWithCodec(m, name, codec.StandardMethodCodec{})
}

// NewMethodChannelWithCodec creates a method channel with an explicit
// codec. Both sides of the channel must use the same one.
func NewMethodChannelWithCodec(m messenger.BinaryMessenger, name string, c codec.MethodCodec) *MethodChannel {
	return &MethodChannel{name: name, messenger: m, codec: c}
}

// Name returns the channel name.
func (c *MethodChannel) Name() string { return c.name }

// Use appends middleware to the host-side dispatch chain. Must be called
// before SetMethodCallHandler; the chain is composed once, at registration.
func (c *MethodChannel) Use(mw middleware.Middleware) {
	c.middlewares = append(c.middlewares, mw)
}

// InvokeMethod starts an asynchronous invocation and returns the in-flight
// Call. The returned Call completes exactly once: with the success value,
// with the handler's *PlatformError, with ErrNotImplemented, or with
// ErrChannelGone if the transport is torn down first. There is no built-in
// timeout — see Invoke for deadline handling.
func (c *MethodChannel) InvokeMethod(method string, arguments value.Value) *Call {
	call := &Call{
		Method:    method,
		Arguments: arguments,
		Done:      make(chan *Call, 1), // Buffered: completion never blocks, late completions never leak goroutines
	}

	data, err := c.codec.EncodeMethodCall(codec.MethodCall{Method: method, Arguments: arguments})
	if err != nil {
		call.Err = err
		call.done()
		return call
	}

	c.messenger.Send(c.name, data, func(reply []byte) {
		if reply == nil {
			call.Err = ErrChannelGone
		} else {
			call.Value, call.Err = c.codec.DecodeEnvelope(reply)
		}
		call.done()
	})
	return call
}

// Invoke runs InvokeMethod and waits for completion or ctx expiry. An
// abandoned call's eventual completion is harmless: the Done channel is
// buffered, so the late callback simply parks the result for the garbage
// collector.
func (c *MethodChannel) Invoke(ctx context.Context, method string, arguments value.Value) (value.Value, error) {
	call := c.InvokeMethod(method, arguments)
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("invoke %s on %s: %w", method, c.name, ctx.Err())
	case <-call.Done:
		return call.Value, call.Err
	}
}

// SetMethodCallHandler registers the host-side handler, wrapped in any
// middleware added with Use. A nil handler unregisters. Registering twice
// replaces the previous handler (last registration wins).
//
// Each incoming call is dispatched on its own goroutine, so handlers may
// block; the messenger's dispatch sequence is never held up. The reply for
// a given call is produced exactly once.
func (c *MethodChannel) SetMethodCallHandler(handler middleware.Handler) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}
	chained := middleware.Chain(c.middlewares...)(handler)
	c.messenger.SetMessageHandler(c.name, func(message []byte, reply messenger.BinaryReply) {
		go c.handle(chained, message, reply)
	})
}

func (c *MethodChannel) handle(handler middleware.Handler, message []byte, reply messenger.BinaryReply) {
	call, err := c.codec.DecodeMethodCall(message)
	if err != nil {
		// Malformed request: answer with the fixed decode-failure code
		// instead of letting the bad input take down anything.
		c.replyError(reply, CodeDecodeFailure, err.Error(), value.Null{})
		return
	}

	result, err := c.invokeHandler(handler, call)
	switch {
	case err == nil:
		data, encErr := c.codec.EncodeSuccessEnvelope(result)
		if encErr != nil {
			c.replyError(reply, CodeInternal, encErr.Error(), value.Null{})
			return
		}
		reply(data)
	case errors.Is(err, ErrNotImplemented):
		reply(codec.NotImplementedEnvelope())
	default:
		var pe *PlatformError
		if errors.As(err, &pe) {
			c.replyError(reply, pe.Code, pe.Message, pe.Details)
		} else {
			c.replyError(reply, CodeInternal, err.Error(), value.Null{})
		}
	}
}

// invokeHandler isolates the user handler so a panic becomes an error reply
// rather than a dead dispatch goroutine.
func (c *MethodChannel) invokeHandler(handler middleware.Handler, call codec.MethodCall) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PlatformError{
				Code:    CodeInternal,
				Message: fmt.Sprintf("handler panic: %v", r),
				Details: value.Null{},
			}
		}
	}()
	return handler(context.Background(), call)
}

func (c *MethodChannel) replyError(reply messenger.BinaryReply, code, message string, details value.Value) {
	data, err := c.codec.EncodeErrorEnvelope(code, message, details)
	if err != nil {
		// Details refused to encode; retry without them.
		data, _ = c.codec.EncodeErrorEnvelope(code, message, value.Null{})
	}
	reply(data)
}
